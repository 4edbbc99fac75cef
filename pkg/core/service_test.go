package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/content"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/operator"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkglog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkgversion"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/transparency"
)

func seededSigner(b byte) *signing.Ed25519Signer {
	seed := make([]byte, 32)
	seed[0] = b
	return signing.NewEd25519SignerFromSeed(seed)
}

func newHarness(t *testing.T) (*Service, *store.MemoryDataStore, *transparency.MemoryBuilder, *content.MemoryOracle, context.Context) {
	t.Helper()
	ds, err := store.NewMemoryDataStore(hashing.Sha256, signing.Ed25519Verifier{})
	require.NoError(t, err)
	builder := transparency.NewMemoryBuilder(hashing.Sha256, 0)
	oracle := content.NewMemoryOracle()
	svc := New(ds, builder, oracle, hashing.Sha256, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)
	return svc, ds, builder, oracle, ctx
}

func TestSubmitOperatorAndPackageThenCheckpoint(t *testing.T) {
	svc, ds, builder, oracle, ctx := newHarness(t)

	opSigner := seededSigner(0)
	opBody, err := operator.NewBody(nil, time.Unix(1000, 0), 1, []operator.Entry{
		operator.Init{HashAlg: hashing.Sha256, Key: opSigner.PublicKey()},
	})
	require.NoError(t, err)
	opEnv, err := envelope.New(opBody, hashing.Sha256, opSigner)
	require.NoError(t, err)

	opState, err := svc.SubmitOperatorRecord(ctx, opEnv)
	require.NoError(t, err)
	assert.Equal(t, store.StatusValidated, opState.Status)

	pkgSigner := seededSigner(1)
	pkgBody, err := pkglog.NewBody(nil, time.Unix(1000, 0), 1, []pkglog.Entry{
		pkglog.Init{HashAlg: hashing.Sha256, Key: pkgSigner.PublicKey()},
	})
	require.NoError(t, err)
	pkgEnv, err := envelope.New(pkgBody, hashing.Sha256, pkgSigner)
	require.NoError(t, err)

	pkgState, err := svc.SubmitPackageRecord(ctx, "acme:widget", pkgEnv, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusValidated, pkgState.Status)

	pkgInitID, err := envelope.RecordID(pkgEnv, hashing.Sha256)
	require.NoError(t, err)

	d, err := hashing.Sum(hashing.Sha256, []byte("tarball"))
	require.NoError(t, err)
	ver, err := pkgversion.Parse("1.0.0")
	require.NoError(t, err)
	relBody, err := pkglog.NewBody(&pkgInitID, time.Unix(1001, 0), 1, []pkglog.Entry{
		pkglog.Release{Version: ver, ContentDigest: d},
	})
	require.NoError(t, err)
	relEnv, err := envelope.New(relBody, hashing.Sha256, pkgSigner)
	require.NoError(t, err)

	relState, err := svc.SubmitPackageRecord(ctx, "acme:widget", relEnv, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusPending, relState.Status)
	require.Len(t, relState.Missing, 1)

	relID, err := envelope.RecordID(relEnv, hashing.Sha256)
	require.NoError(t, err)
	oracle.Mark(d)

	finalState, err := svc.SetContentPresent(ctx, "acme:widget", relID, d)
	require.NoError(t, err)
	assert.Equal(t, store.StatusValidated, finalState.Status)

	require.NoError(t, builder.Flush())

	// allow the actor goroutine to consume the checkpoint notice
	require.Eventually(t, func() bool {
		_, err := svc.GetLatestCheckpoint()
		return err == nil
	}, time.Second, time.Millisecond)

	opLogID, _ := hashing.OperatorLogID(hashing.Sha256)
	opInitID, _ := envelope.RecordID(opEnv, hashing.Sha256)
	info, err := ds.GetOperatorRecord(opLogID, opInitID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPublished, info.Status)
}
