package store

import (
	"sync"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/operator"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkglog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

type record struct {
	id            hashing.AnyHash
	status        Status
	env           *envelope.Envelope
	rejectReason  string
	missing       map[string]hashing.AnyHash
	hasCheckpoint bool
	checkpointID  hashing.AnyHash
	checkpointIdx int
}

func (r *record) info() RecordInfo {
	return RecordInfo{
		Status:        r.status,
		Envelope:      r.env,
		RejectReason:  r.rejectReason,
		CheckpointID:  r.checkpointID,
		HasCheckpoint: r.hasCheckpoint,
		CheckpointIdx: r.checkpointIdx,
	}
}

type operatorLog struct {
	validator         *operator.Validator
	records           map[string]*record
	order             []string // recordID strings, in validation order
	checkpointIndices []int
}

type packageLogEntry struct {
	name              string
	validator         *pkglog.Validator
	records           map[string]*record
	order             []string
	checkpointIndices []int
}

// MemoryDataStore is the reference in-memory DataStore implementation:
// all state behind a single reader-writer lock, readers run in
// parallel, writers are exclusive. It is a correctness reference, not
// a performance target.
type MemoryDataStore struct {
	mu sync.RWMutex

	alg           hashing.Alg
	verifier      signing.Verifier
	operatorLogID hashing.AnyHash
	operatorLog   *operatorLog

	packages map[string]*packageLogEntry // keyed by logID string

	checkpoints     []Checkpoint
	checkpointIndex map[string]int // checkpointID string -> position
}

// NewMemoryDataStore creates an empty store whose operator log is
// addressed under alg.
func NewMemoryDataStore(alg hashing.Alg, verifier signing.Verifier) (*MemoryDataStore, error) {
	opLogID, err := hashing.OperatorLogID(alg)
	if err != nil {
		return nil, err
	}
	return &MemoryDataStore{
		alg:           alg,
		verifier:      verifier,
		operatorLogID: opLogID,
		operatorLog: &operatorLog{
			validator: operator.NewValidator(verifier),
			records:   make(map[string]*record),
		},
		packages:        make(map[string]*packageLogEntry),
		checkpointIndex: make(map[string]int),
	}, nil
}

func (s *MemoryDataStore) requireOperatorLog(logID hashing.AnyHash) error {
	if !logID.Equal(s.operatorLogID) {
		return ErrLogNotFound(logID.String())
	}
	return nil
}

func (s *MemoryDataStore) StoreOperatorRecord(logID, recordID hashing.AnyHash, env *envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOperatorLog(logID); err != nil {
		return err
	}
	log := s.operatorLog
	if _, exists := log.records[recordID.String()]; exists {
		return ErrDuplicateRecord(recordID.String())
	}
	log.records[recordID.String()] = &record{id: recordID, status: StatusPending, env: env}
	return nil
}

func (s *MemoryDataStore) RejectOperatorRecord(logID, recordID hashing.AnyHash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOperatorLog(logID); err != nil {
		return err
	}
	r, ok := s.operatorLog.records[recordID.String()]
	if !ok {
		return ErrRecordNotFound(recordID.String())
	}
	if r.status != StatusPending {
		return ErrRecordNotPending(recordID.String())
	}
	r.status = StatusRejected
	r.rejectReason = reason
	return nil
}

func (s *MemoryDataStore) ValidateOperatorRecord(logID, recordID hashing.AnyHash) ([]hashing.AnyHash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOperatorLog(logID); err != nil {
		return nil, err
	}
	log := s.operatorLog
	r, ok := log.records[recordID.String()]
	if !ok {
		return nil, ErrRecordNotFound(recordID.String())
	}
	if r.status != StatusPending {
		return nil, ErrRecordNotPending(recordID.String())
	}

	snap := log.validator.Snapshot()
	if err := log.validator.Validate(r.env); err != nil {
		log.validator.Rollback(snap)
		r.status = StatusRejected
		r.rejectReason = err.Error()
		return nil, err
	}

	r.status = StatusValidated
	log.order = append(log.order, recordID.String())
	return nil, nil
}

func (s *MemoryDataStore) requirePackageLog(logID hashing.AnyHash) (*packageLogEntry, error) {
	pkg, ok := s.packages[logID.String()]
	if !ok {
		return nil, ErrLogNotFound(logID.String())
	}
	return pkg, nil
}

func (s *MemoryDataStore) StorePackageRecord(logID hashing.AnyHash, name string, recordID hashing.AnyHash, env *envelope.Envelope, missing map[string]hashing.AnyHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[logID.String()]
	if !ok {
		pkg = &packageLogEntry{
			name:      name,
			validator: pkglog.NewValidator(s.verifier),
			records:   make(map[string]*record),
		}
		s.packages[logID.String()] = pkg
	}
	if _, exists := pkg.records[recordID.String()]; exists {
		return ErrDuplicateRecord(recordID.String())
	}
	m := make(map[string]hashing.AnyHash, len(missing))
	for k, v := range missing {
		m[k] = v
	}
	pkg.records[recordID.String()] = &record{id: recordID, status: StatusPending, env: env, missing: m}
	return nil
}

func (s *MemoryDataStore) RejectPackageRecord(logID, recordID hashing.AnyHash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, err := s.requirePackageLog(logID)
	if err != nil {
		return err
	}
	r, ok := pkg.records[recordID.String()]
	if !ok {
		return ErrRecordNotFound(recordID.String())
	}
	if r.status != StatusPending {
		return ErrRecordNotPending(recordID.String())
	}
	r.status = StatusRejected
	r.rejectReason = reason
	return nil
}

func (s *MemoryDataStore) ValidatePackageRecord(logID, recordID hashing.AnyHash) ([]hashing.AnyHash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, err := s.requirePackageLog(logID)
	if err != nil {
		return nil, err
	}
	r, ok := pkg.records[recordID.String()]
	if !ok {
		return nil, ErrRecordNotFound(recordID.String())
	}
	if r.status != StatusPending {
		return nil, ErrRecordNotPending(recordID.String())
	}
	if len(r.missing) != 0 {
		return nil, ErrRecordNotPending(recordID.String())
	}

	snap := pkg.validator.Snapshot()
	introduced, verr := pkg.validator.Validate(r.env)
	if verr != nil {
		pkg.validator.Rollback(snap)
		r.status = StatusRejected
		r.rejectReason = verr.Error()
		return nil, verr
	}

	r.status = StatusValidated
	pkg.order = append(pkg.order, recordID.String())
	return introduced, nil
}

func (s *MemoryDataStore) IsContentMissing(logID, recordID hashing.AnyHash, digest hashing.AnyHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, err := s.requirePackageLog(logID)
	if err != nil {
		return false, err
	}
	r, ok := pkg.records[recordID.String()]
	if !ok {
		return false, ErrRecordNotFound(recordID.String())
	}
	_, missing := r.missing[digest.String()]
	return missing, nil
}

func (s *MemoryDataStore) SetContentPresent(logID, recordID hashing.AnyHash, digest hashing.AnyHash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, err := s.requirePackageLog(logID)
	if err != nil {
		return false, err
	}
	r, ok := pkg.records[recordID.String()]
	if !ok {
		return false, ErrRecordNotFound(recordID.String())
	}
	if _, present := r.missing[digest.String()]; !present {
		return false, nil
	}
	delete(r.missing, digest.String())
	return len(r.missing) == 0, nil
}

func (s *MemoryDataStore) StoreCheckpoint(checkpointID hashing.AnyHash, checkpoint MapCheckpoint, participants []LogLeaf) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpointIndex[checkpointID.String()]; exists {
		return ErrDuplicateRecord(checkpointID.String())
	}

	position := len(s.checkpoints)
	for _, leaf := range participants {
		if leaf.LogID.Equal(s.operatorLogID) {
			r, ok := s.operatorLog.records[leaf.RecordID.String()]
			if !ok || r.status != StatusValidated {
				return ErrRecordNotFound(leaf.RecordID.String())
			}
			r.status = StatusPublished
			r.hasCheckpoint = true
			r.checkpointID = checkpointID
			r.checkpointIdx = position
			s.operatorLog.checkpointIndices = append(s.operatorLog.checkpointIndices, position)
			continue
		}
		pkg, ok := s.packages[leaf.LogID.String()]
		if !ok {
			return ErrLogNotFound(leaf.LogID.String())
		}
		r, ok := pkg.records[leaf.RecordID.String()]
		if !ok || r.status != StatusValidated {
			return ErrRecordNotFound(leaf.RecordID.String())
		}
		r.status = StatusPublished
		r.hasCheckpoint = true
		r.checkpointID = checkpointID
		r.checkpointIdx = position
		pkg.checkpointIndices = append(pkg.checkpointIndices, position)
	}

	s.checkpoints = append(s.checkpoints, Checkpoint{ID: checkpointID, Value: checkpoint, Participants: participants})
	s.checkpointIndex[checkpointID.String()] = position
	return nil
}

func (s *MemoryDataStore) GetLatestCheckpoint() (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.checkpoints) == 0 {
		return Checkpoint{}, ErrCheckpointNotFound("<none>")
	}
	return s.checkpoints[len(s.checkpoints)-1], nil
}

func (s *MemoryDataStore) GetOperatorRecord(logID, recordID hashing.AnyHash) (RecordInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireOperatorLog(logID); err != nil {
		return RecordInfo{}, err
	}
	r, ok := s.operatorLog.records[recordID.String()]
	if !ok {
		return RecordInfo{}, ErrRecordNotFound(recordID.String())
	}
	return r.info(), nil
}

func (s *MemoryDataStore) GetPackageRecord(logID, recordID hashing.AnyHash) (RecordInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, err := s.requirePackageLog(logID)
	if err != nil {
		return RecordInfo{}, err
	}
	r, ok := pkg.records[recordID.String()]
	if !ok {
		return RecordInfo{}, ErrRecordNotFound(recordID.String())
	}
	return r.info(), nil
}

// fetchWindow implements the fetch-by-(root, since, limit) contract
// shared by both logs' record tables.
func fetchWindow(records map[string]*record, order []string, checkpointIndex map[string]int, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	p, ok := checkpointIndex[root.String()]
	if !ok {
		return nil, ErrCheckpointNotFound(root.String())
	}

	start := 0
	if since != nil {
		idx := -1
		for i, id := range order {
			if id == since.String() {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrRecordNotFound(since.String())
		}
		start = idx + 1
	}

	end := 0
	for _, id := range order {
		r := records[id]
		if r.status == StatusPublished && r.checkpointIdx <= p {
			end++
		} else {
			break
		}
	}

	if start > end {
		start = end
	}
	window := order[start:end]
	if limit >= 0 && len(window) > limit {
		window = window[:limit]
	}

	out := make([]*envelope.Envelope, 0, len(window))
	for _, id := range window {
		out = append(out, records[id].env)
	}
	return out, nil
}

func (s *MemoryDataStore) GetOperatorRecords(logID hashing.AnyHash, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireOperatorLog(logID); err != nil {
		return nil, err
	}
	return fetchWindow(s.operatorLog.records, s.operatorLog.order, s.checkpointIndex, root, since, limit)
}

func (s *MemoryDataStore) GetPackageRecords(logID hashing.AnyHash, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, err := s.requirePackageLog(logID)
	if err != nil {
		return nil, err
	}
	return fetchWindow(pkg.records, pkg.order, s.checkpointIndex, root, since, limit)
}

func (s *MemoryDataStore) GetInitialLeaves() ([]InitialLeaf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]InitialLeaf, 0, len(s.packages)+1)
	opLeaves := make([]LogLeaf, 0, len(s.operatorLog.order))
	for _, id := range s.operatorLog.order {
		opLeaves = append(opLeaves, LogLeaf{LogID: s.operatorLogID, RecordID: s.operatorLog.records[id].id})
	}
	if len(opLeaves) > 0 {
		out = append(out, InitialLeaf{LogID: s.operatorLogID, Leaves: opLeaves})
	}

	for logIDStr, pkg := range s.packages {
		logID, err := hashing.Parse(logIDStr)
		if err != nil {
			return nil, err
		}
		leaves := make([]LogLeaf, 0, len(pkg.order))
		for _, id := range pkg.order {
			leaves = append(leaves, LogLeaf{LogID: logID, RecordID: pkg.records[id].id})
		}
		out = append(out, InitialLeaf{LogID: logID, Leaves: leaves})
	}
	return out, nil
}

func (s *MemoryDataStore) GetNames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.packages))
	for _, pkg := range s.packages {
		names = append(names, pkg.name)
	}
	return names, nil
}
