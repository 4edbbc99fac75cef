// Package core implements the registry coordination core: a
// single-actor service that owns the data store, funnels every
// mutation through one mailbox to eliminate data races on validator
// state, forwards validated leaves to a transparency builder, and
// installs checkpoints as they arrive.
package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/content"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkglog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/telemetry"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/transparency"
)

// attrSubmissionID tags every span and counter this core emits with a
// correlation id scoped to one submission call — SetContentPresent
// re-admitting an already-pending record is a new submission, not a
// continuation of the one that made it pending.
const attrSubmissionID = "registry.submission.id"

func newCorrelationID() attribute.KeyValue {
	return attribute.String(attrSubmissionID, uuid.NewString())
}

// RecordState is what a submission or content-arrival call returns:
// the record's resulting status and, if still Pending, the digests
// still needed.
type RecordState struct {
	Status  store.Status
	Missing []hashing.AnyHash
	Reason  string
}

// Service is the actor: SubmitPackageRecord, SetContentPresent, and
// checkpoint installation all run as closures on its single mailbox
// goroutine, so no suspension ever occurs inside the validator's
// critical section. Fetches and status lookups bypass the mailbox
// since the underlying store already serializes writers against
// readers.
type Service struct {
	store   store.DataStore
	builder transparency.Builder
	oracle  content.Oracle
	alg     hashing.Alg
	tel     *telemetry.Provider

	mailbox chan func()
}

// New constructs a Service. oracle may be nil if no content sources
// ever need an existence check beyond what submissions supply inline.
func New(ds store.DataStore, builder transparency.Builder, oracle content.Oracle, alg hashing.Alg, tel *telemetry.Provider) *Service {
	return &Service{
		store:   ds,
		builder: builder,
		oracle:  oracle,
		alg:     alg,
		tel:     tel,
		mailbox: make(chan func(), 64),
	}
}

// Run processes the mailbox and the builder's checkpoint channel until
// ctx is cancelled. It is meant to run in its own goroutine.
func (s *Service) Run(ctx context.Context) {
	go s.consumeCheckpoints(ctx)
	for {
		select {
		case fn := <-s.mailbox:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) consumeCheckpoints(ctx context.Context) {
	for {
		select {
		case notice, ok := <-s.builder.Checkpoints():
			if !ok {
				return
			}
			s.enqueue(func() {
				if err := s.store.StoreCheckpoint(notice.ID, notice.Checkpoint, notice.Participants); err != nil {
					if s.tel != nil {
						s.tel.Logger().ErrorContext(ctx, "checkpoint install failed", "error", err)
					}
					return
				}
				if s.tel != nil {
					s.tel.RecordCheckpoint(ctx)
				}
			})
		case <-ctx.Done():
			return
		}
	}
}

// enqueue runs fn on the mailbox goroutine and blocks until it
// completes, giving callers a synchronous request/reply feel over the
// actor's single writer.
func (s *Service) enqueue(fn func()) {
	done := make(chan struct{})
	s.mailbox <- func() {
		fn()
		close(done)
	}
	<-done
}

// SubmitOperatorRecord validates env against the operator log and, on
// success, forwards its leaf to the transparency builder.
func (s *Service) SubmitOperatorRecord(ctx context.Context, env *envelope.Envelope) (RecordState, error) {
	corrAttr := newCorrelationID()
	if s.tel != nil {
		var span trace.Span
		ctx, span = s.tel.StartSpan(ctx, "core.SubmitOperatorRecord", corrAttr)
		defer span.End()
	}

	var result RecordState
	var outerErr error
	s.enqueue(func() {
		logID, err := hashing.OperatorLogID(s.alg)
		if err != nil {
			outerErr = err
			return
		}
		recordID, err := envelope.RecordID(env, s.alg)
		if err != nil {
			outerErr = err
			return
		}
		if err := s.store.StoreOperatorRecord(logID, recordID, env); err != nil {
			outerErr = err
			return
		}
		if _, verr := s.store.ValidateOperatorRecord(logID, recordID); verr != nil {
			result = RecordState{Status: store.StatusRejected, Reason: verr.Error()}
			if s.tel != nil {
				s.tel.RecordRejection(ctx, corrAttr)
			}
			return
		}
		if err := s.builder.SubmitLeaf(store.LogLeaf{LogID: logID, RecordID: recordID}); err != nil {
			outerErr = err
			return
		}
		result = RecordState{Status: store.StatusValidated}
		if s.tel != nil {
			s.tel.RecordSubmission(ctx, corrAttr)
		}
	})
	return result, outerErr
}

// SubmitPackageRecord stores env as the named package's next pending
// record, computing which content digests its Release entries still
// need, then validates immediately if everything needed is already
// available via sources or the oracle.
func (s *Service) SubmitPackageRecord(ctx context.Context, name string, env *envelope.Envelope, sources []content.Source) (RecordState, error) {
	corrAttr := newCorrelationID()
	if s.tel != nil {
		var span trace.Span
		ctx, span = s.tel.StartSpan(ctx, "core.SubmitPackageRecord", corrAttr)
		defer span.End()
	}

	var result RecordState
	var outerErr error
	s.enqueue(func() {
		logID, err := hashing.PackageLogID(s.alg, name)
		if err != nil {
			outerErr = err
			return
		}
		recordID, err := envelope.RecordID(env, s.alg)
		if err != nil {
			outerErr = err
			return
		}
		body, err := env.Body()
		if err != nil {
			outerErr = err
			return
		}
		entries, err := pkglog.Decode(body.Entries)
		if err != nil {
			outerErr = err
			return
		}

		needed := make(map[string]hashing.AnyHash)
		for _, e := range entries {
			if rel, ok := e.(pkglog.Release); ok {
				needed[rel.ContentDigest.String()] = rel.ContentDigest
			}
		}

		provided := make(map[string]bool, len(sources))
		for _, src := range sources {
			provided[src.Digest.String()] = true
		}

		missing := make(map[string]hashing.AnyHash)
		for key, digest := range needed {
			if provided[key] {
				continue
			}
			if s.oracle != nil {
				if exists, _ := s.oracle.Exists(ctx, digest); exists {
					continue
				}
			}
			missing[key] = digest
		}

		if err := s.store.StorePackageRecord(logID, name, recordID, env, missing); err != nil {
			outerErr = err
			return
		}

		if len(missing) > 0 {
			result = RecordState{Status: store.StatusPending, Missing: digestValues(missing)}
			return
		}

		s.finishPackageValidation(ctx, logID, recordID, &result, corrAttr)
	})
	return result, outerErr
}

// SetContentPresent records that digest has been uploaded for a
// pending package record, triggering validation once it was the last
// missing digest.
func (s *Service) SetContentPresent(ctx context.Context, name string, recordID, digest hashing.AnyHash) (RecordState, error) {
	corrAttr := newCorrelationID()
	if s.tel != nil {
		var span trace.Span
		ctx, span = s.tel.StartSpan(ctx, "core.SetContentPresent", corrAttr)
		defer span.End()
	}

	var result RecordState
	var outerErr error
	s.enqueue(func() {
		logID, err := hashing.PackageLogID(s.alg, name)
		if err != nil {
			outerErr = err
			return
		}
		wasLast, err := s.store.SetContentPresent(logID, recordID, digest)
		if err != nil {
			outerErr = err
			return
		}
		if !wasLast {
			info, ierr := s.store.GetPackageRecord(logID, recordID)
			if ierr != nil {
				outerErr = ierr
				return
			}
			result = RecordState{Status: info.Status}
			return
		}
		s.finishPackageValidation(ctx, logID, recordID, &result, corrAttr)
	})
	return result, outerErr
}

func (s *Service) finishPackageValidation(ctx context.Context, logID, recordID hashing.AnyHash, result *RecordState, corrAttr attribute.KeyValue) {
	if _, verr := s.store.ValidatePackageRecord(logID, recordID); verr != nil {
		*result = RecordState{Status: store.StatusRejected, Reason: verr.Error()}
		if s.tel != nil {
			s.tel.RecordRejection(ctx, corrAttr)
		}
		return
	}
	if err := s.builder.SubmitLeaf(store.LogLeaf{LogID: logID, RecordID: recordID}); err != nil {
		*result = RecordState{Status: store.StatusValidated, Reason: fmt.Sprintf("validated but leaf forwarding failed: %v", err)}
		return
	}
	*result = RecordState{Status: store.StatusValidated}
	if s.tel != nil {
		s.tel.RecordSubmission(ctx, corrAttr)
	}
}

func digestValues(m map[string]hashing.AnyHash) []hashing.AnyHash {
	out := make([]hashing.AnyHash, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// GetPackageRecordStatus returns just the status of a package record.
func (s *Service) GetPackageRecordStatus(name string, recordID hashing.AnyHash) (store.Status, error) {
	logID, err := hashing.PackageLogID(s.alg, name)
	if err != nil {
		return "", err
	}
	info, err := s.store.GetPackageRecord(logID, recordID)
	if err != nil {
		return "", err
	}
	return info.Status, nil
}

// GetPackageRecordInfo returns the full record info for a package record.
func (s *Service) GetPackageRecordInfo(name string, recordID hashing.AnyHash) (store.RecordInfo, error) {
	logID, err := hashing.PackageLogID(s.alg, name)
	if err != nil {
		return store.RecordInfo{}, err
	}
	return s.store.GetPackageRecord(logID, recordID)
}

// GetLatestCheckpoint returns the most recently installed checkpoint.
func (s *Service) GetLatestCheckpoint() (store.Checkpoint, error) {
	return s.store.GetLatestCheckpoint()
}

// FetchOperatorRecords returns the operator log's records in the
// (root, since, limit) window.
func (s *Service) FetchOperatorRecords(root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	logID, err := hashing.OperatorLogID(s.alg)
	if err != nil {
		return nil, err
	}
	return s.store.GetOperatorRecords(logID, root, since, limit)
}

// FetchPackageRecords returns a named package log's records in the
// (root, since, limit) window.
func (s *Service) FetchPackageRecords(name string, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	logID, err := hashing.PackageLogID(s.alg, name)
	if err != nil {
		return nil, err
	}
	return s.store.GetPackageRecords(logID, root, since, limit)
}
