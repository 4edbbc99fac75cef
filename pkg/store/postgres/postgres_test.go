package postgres

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/operator"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

func seededSigner(b byte) *signing.Ed25519Signer {
	seed := make([]byte, 32)
	seed[0] = b
	return signing.NewEd25519SignerFromSeed(seed)
}

func TestOpenRunsMigrationAndEmptyReplay(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS operator_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id, envelope, status, reject_reason FROM operator_records ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "envelope", "status", "reject_reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_id, name, record_id, envelope, missing, status, reject_reason FROM package_records ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "name", "record_id", "envelope", "missing", "status", "reject_reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checkpoint_id, value, participants FROM checkpoints ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint_id", "value", "participants"}))

	ds, err := Open(db, hashing.Sha256, signing.Ed25519Verifier{})
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOperatorRecordPersistsAfterMemSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS operator_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id, envelope, status, reject_reason FROM operator_records ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "envelope", "status", "reject_reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_id, name, record_id, envelope, missing, status, reject_reason FROM package_records ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "name", "record_id", "envelope", "missing", "status", "reject_reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checkpoint_id, value, participants FROM checkpoints ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint_id", "value", "participants"}))

	ds, err := Open(db, hashing.Sha256, signing.Ed25519Verifier{})
	require.NoError(t, err)

	signer := seededSigner(0)
	body, err := operator.NewBody(nil, time.Unix(1000, 0), 1, []operator.Entry{
		operator.Init{HashAlg: hashing.Sha256, Key: signer.PublicKey()},
	})
	require.NoError(t, err)
	env, err := envelope.New(body, hashing.Sha256, signer)
	require.NoError(t, err)
	recordID, err := envelope.RecordID(env, hashing.Sha256)
	require.NoError(t, err)
	logID, err := hashing.OperatorLogID(hashing.Sha256)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO operator_records (record_id, envelope) VALUES ($1, $2)")).
		WithArgs(recordID.String(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.StoreOperatorRecord(logID, recordID, env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOperatorRecordSkipsPersistenceWhenMemRejects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS operator_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record_id, envelope, status, reject_reason FROM operator_records ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "envelope", "status", "reject_reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_id, name, record_id, envelope, missing, status, reject_reason FROM package_records ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "name", "record_id", "envelope", "missing", "status", "reject_reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checkpoint_id, value, participants FROM checkpoints ORDER BY seq")).
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint_id", "value", "participants"}))

	ds, err := Open(db, hashing.Sha256, signing.Ed25519Verifier{})
	require.NoError(t, err)

	signer := seededSigner(1)
	body, err := operator.NewBody(nil, time.Unix(1000, 0), 1, []operator.Entry{
		operator.Init{HashAlg: hashing.Sha256, Key: signer.PublicKey()},
	})
	require.NoError(t, err)
	env, err := envelope.New(body, hashing.Sha256, signer)
	require.NoError(t, err)
	recordID, err := envelope.RecordID(env, hashing.Sha256)
	require.NoError(t, err)

	// A log id that doesn't match the singleton operator log must be
	// rejected by the in-memory delegate before any SQL runs.
	wrongLogID, err := hashing.Sum(hashing.Sha256, []byte("not-the-operator-log"))
	require.NoError(t, err)

	err = ds.StoreOperatorRecord(wrongLogID, recordID, env)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
