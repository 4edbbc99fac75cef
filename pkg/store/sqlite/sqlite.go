// Package sqlite provides a durable store.DataStore backed by SQLite.
// It delegates all validator bookkeeping to store.MemoryDataStore —
// the correctness reference — and makes it durable by writing every
// successful mutation through to a SQLite table, replaying those rows
// in insertion order to rebuild the in-memory validator state whenever
// the store is opened.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store"
)

// DataStore is a SQLite-backed store.DataStore.
type DataStore struct {
	db  *sql.DB
	mem *store.MemoryDataStore
	alg hashing.Alg
}

// Open migrates db's schema if needed, then replays any previously
// persisted records and checkpoints to rebuild validator state before
// returning.
func Open(db *sql.DB, alg hashing.Alg, verifier signing.Verifier) (*DataStore, error) {
	mem, err := store.NewMemoryDataStore(alg, verifier)
	if err != nil {
		return nil, err
	}
	s := &DataStore{db: db, mem: mem, alg: alg}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	if err := s.replay(); err != nil {
		return nil, fmt.Errorf("sqlite: replay failed: %w", err)
	}
	return s, nil
}

func (s *DataStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operator_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT UNIQUE NOT NULL,
			envelope BLOB NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reject_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS package_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			log_id TEXT NOT NULL,
			name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			envelope BLOB NOT NULL,
			missing TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'pending',
			reject_reason TEXT NOT NULL DEFAULT '',
			UNIQUE(log_id, record_id)
		)`,
		`CREATE TABLE IF NOT EXISTS content_presence (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			log_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			digest TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			checkpoint_id TEXT UNIQUE NOT NULL,
			value TEXT NOT NULL,
			participants TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("sqlite: migration failed: %w", err)
		}
	}
	return nil
}

func (s *DataStore) replay() error {
	opLogID, err := hashing.OperatorLogID(s.alg)
	if err != nil {
		return err
	}

	rows, err := s.db.Query(`SELECT record_id, envelope, status, reject_reason FROM operator_records ORDER BY seq`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var recordIDStr, status, reason string
		var envBytes []byte
		if err := rows.Scan(&recordIDStr, &envBytes, &status, &reason); err != nil {
			rows.Close()
			return err
		}
		recordID, err := hashing.Parse(recordIDStr)
		if err != nil {
			rows.Close()
			return err
		}
		env, err := envelope.Unmarshal(envBytes)
		if err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.StoreOperatorRecord(opLogID, recordID, env); err != nil {
			rows.Close()
			return err
		}
		switch status {
		case "rejected":
			if err := s.mem.RejectOperatorRecord(opLogID, recordID, reason); err != nil {
				rows.Close()
				return err
			}
		case "validated", "published":
			if _, verr := s.mem.ValidateOperatorRecord(opLogID, recordID); verr != nil {
				rows.Close()
				return fmt.Errorf("replaying operator record %s: %w", recordIDStr, verr)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	pkgRows, err := s.db.Query(`SELECT log_id, name, record_id, envelope, missing, status, reject_reason FROM package_records ORDER BY seq`)
	if err != nil {
		return err
	}
	for pkgRows.Next() {
		var logIDStr, name, recordIDStr, missingJSON, status, reason string
		var envBytes []byte
		if err := pkgRows.Scan(&logIDStr, &name, &recordIDStr, &envBytes, &missingJSON, &status, &reason); err != nil {
			pkgRows.Close()
			return err
		}
		logID, err := hashing.Parse(logIDStr)
		if err != nil {
			pkgRows.Close()
			return err
		}
		recordID, err := hashing.Parse(recordIDStr)
		if err != nil {
			pkgRows.Close()
			return err
		}
		env, err := envelope.Unmarshal(envBytes)
		if err != nil {
			pkgRows.Close()
			return err
		}
		var missingList []string
		if err := json.Unmarshal([]byte(missingJSON), &missingList); err != nil {
			pkgRows.Close()
			return err
		}
		missing := make(map[string]hashing.AnyHash, len(missingList))
		for _, digestStr := range missingList {
			digest, err := hashing.Parse(digestStr)
			if err != nil {
				pkgRows.Close()
				return err
			}
			missing[digestStr] = digest
		}
		if err := s.mem.StorePackageRecord(logID, name, recordID, env, missing); err != nil {
			pkgRows.Close()
			return err
		}

		presenceRows, err := s.db.Query(`SELECT digest FROM content_presence WHERE log_id = ? AND record_id = ? ORDER BY seq`, logIDStr, recordIDStr)
		if err != nil {
			pkgRows.Close()
			return err
		}
		for presenceRows.Next() {
			var digestStr string
			if err := presenceRows.Scan(&digestStr); err != nil {
				presenceRows.Close()
				pkgRows.Close()
				return err
			}
			digest, err := hashing.Parse(digestStr)
			if err != nil {
				presenceRows.Close()
				pkgRows.Close()
				return err
			}
			if _, err := s.mem.SetContentPresent(logID, recordID, digest); err != nil {
				presenceRows.Close()
				pkgRows.Close()
				return err
			}
		}
		presenceRows.Close()

		switch status {
		case "rejected":
			if err := s.mem.RejectPackageRecord(logID, recordID, reason); err != nil {
				pkgRows.Close()
				return err
			}
		case "validated", "published":
			if _, verr := s.mem.ValidatePackageRecord(logID, recordID); verr != nil {
				pkgRows.Close()
				return fmt.Errorf("replaying package record %s: %w", recordIDStr, verr)
			}
		}
	}
	if err := pkgRows.Err(); err != nil {
		return err
	}
	pkgRows.Close()

	cpRows, err := s.db.Query(`SELECT checkpoint_id, value, participants FROM checkpoints ORDER BY seq`)
	if err != nil {
		return err
	}
	defer cpRows.Close()
	for cpRows.Next() {
		var checkpointIDStr, valueJSON, participantsJSON string
		if err := cpRows.Scan(&checkpointIDStr, &valueJSON, &participantsJSON); err != nil {
			return err
		}
		checkpointID, err := hashing.Parse(checkpointIDStr)
		if err != nil {
			return err
		}
		var value store.MapCheckpoint
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			return err
		}
		var participants []store.LogLeaf
		if err := json.Unmarshal([]byte(participantsJSON), &participants); err != nil {
			return err
		}
		if err := s.mem.StoreCheckpoint(checkpointID, value, participants); err != nil {
			return err
		}
	}
	return cpRows.Err()
}

func (s *DataStore) StoreOperatorRecord(logID, recordID hashing.AnyHash, env *envelope.Envelope) error {
	if err := s.mem.StoreOperatorRecord(logID, recordID, env); err != nil {
		return err
	}
	envBytes, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO operator_records (record_id, envelope) VALUES (?, ?)`, recordID.String(), envBytes)
	return err
}

func (s *DataStore) RejectOperatorRecord(logID, recordID hashing.AnyHash, reason string) error {
	if err := s.mem.RejectOperatorRecord(logID, recordID, reason); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE operator_records SET status = 'rejected', reject_reason = ? WHERE record_id = ?`, reason, recordID.String())
	return err
}

func (s *DataStore) ValidateOperatorRecord(logID, recordID hashing.AnyHash) ([]hashing.AnyHash, error) {
	introduced, verr := s.mem.ValidateOperatorRecord(logID, recordID)
	if verr != nil {
		_, _ = s.db.Exec(`UPDATE operator_records SET status = 'rejected', reject_reason = ? WHERE record_id = ?`, verr.Error(), recordID.String())
		return nil, verr
	}
	if _, err := s.db.Exec(`UPDATE operator_records SET status = 'validated' WHERE record_id = ?`, recordID.String()); err != nil {
		return nil, err
	}
	return introduced, nil
}

func (s *DataStore) StorePackageRecord(logID hashing.AnyHash, name string, recordID hashing.AnyHash, env *envelope.Envelope, missing map[string]hashing.AnyHash) error {
	if err := s.mem.StorePackageRecord(logID, name, recordID, env, missing); err != nil {
		return err
	}
	envBytes, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	missingList := make([]string, 0, len(missing))
	for key := range missing {
		missingList = append(missingList, key)
	}
	missingJSON, err := json.Marshal(missingList)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO package_records (log_id, name, record_id, envelope, missing) VALUES (?, ?, ?, ?, ?)`,
		logID.String(), name, recordID.String(), envBytes, string(missingJSON))
	return err
}

func (s *DataStore) RejectPackageRecord(logID, recordID hashing.AnyHash, reason string) error {
	if err := s.mem.RejectPackageRecord(logID, recordID, reason); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE package_records SET status = 'rejected', reject_reason = ? WHERE log_id = ? AND record_id = ?`, reason, logID.String(), recordID.String())
	return err
}

func (s *DataStore) ValidatePackageRecord(logID, recordID hashing.AnyHash) ([]hashing.AnyHash, error) {
	introduced, verr := s.mem.ValidatePackageRecord(logID, recordID)
	if verr != nil {
		_, _ = s.db.Exec(`UPDATE package_records SET status = 'rejected', reject_reason = ? WHERE log_id = ? AND record_id = ?`, verr.Error(), logID.String(), recordID.String())
		return nil, verr
	}
	if _, err := s.db.Exec(`UPDATE package_records SET status = 'validated' WHERE log_id = ? AND record_id = ?`, logID.String(), recordID.String()); err != nil {
		return nil, err
	}
	return introduced, nil
}

func (s *DataStore) IsContentMissing(logID, recordID, digest hashing.AnyHash) (bool, error) {
	return s.mem.IsContentMissing(logID, recordID, digest)
}

func (s *DataStore) SetContentPresent(logID, recordID, digest hashing.AnyHash) (bool, error) {
	wasLast, err := s.mem.SetContentPresent(logID, recordID, digest)
	if err != nil {
		return false, err
	}
	if _, err := s.db.Exec(`INSERT INTO content_presence (log_id, record_id, digest) VALUES (?, ?, ?)`,
		logID.String(), recordID.String(), digest.String()); err != nil {
		return false, err
	}
	return wasLast, nil
}

func (s *DataStore) StoreCheckpoint(checkpointID hashing.AnyHash, checkpoint store.MapCheckpoint, participants []store.LogLeaf) error {
	if err := s.mem.StoreCheckpoint(checkpointID, checkpoint, participants); err != nil {
		return err
	}
	valueJSON, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO checkpoints (checkpoint_id, value, participants) VALUES (?, ?, ?)`,
		checkpointID.String(), string(valueJSON), string(participantsJSON))
	return err
}

func (s *DataStore) GetLatestCheckpoint() (store.Checkpoint, error) {
	return s.mem.GetLatestCheckpoint()
}

func (s *DataStore) GetOperatorRecord(logID, recordID hashing.AnyHash) (store.RecordInfo, error) {
	return s.mem.GetOperatorRecord(logID, recordID)
}

func (s *DataStore) GetPackageRecord(logID, recordID hashing.AnyHash) (store.RecordInfo, error) {
	return s.mem.GetPackageRecord(logID, recordID)
}

func (s *DataStore) GetOperatorRecords(logID hashing.AnyHash, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	return s.mem.GetOperatorRecords(logID, root, since, limit)
}

func (s *DataStore) GetPackageRecords(logID hashing.AnyHash, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error) {
	return s.mem.GetPackageRecords(logID, root, since, limit)
}

func (s *DataStore) GetInitialLeaves() ([]store.InitialLeaf, error) {
	return s.mem.GetInitialLeaves()
}

func (s *DataStore) GetNames() ([]string, error) {
	return s.mem.GetNames()
}
