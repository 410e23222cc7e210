package history

import (
	"fmt"

	"github.com/cuemby/hammer/pkg/report"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

var bucketRuns = []byte("runs")

// Store is a BoltDB-backed, append-only ledger of completed run reports,
// keyed by run id. Enabled only via --history-db; the orchestrator never
// requires it.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the history database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun appends one run's report document, keyed by its run id. Runs are
// immutable once saved; SaveRun overwrites only if called twice with the
// same run id, which should not happen in practice.
func (s *Store) SaveRun(doc report.Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", doc.RunInfo.RunID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.Put([]byte(doc.RunInfo.RunID), data)
	})
}

// GetRun retrieves one run's report document by id.
func (s *Store) GetRun(runID string) (*report.Document, error) {
	var doc report.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return yaml.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListRuns returns every saved run, in bucket (insertion) order.
func (s *Store) ListRuns() ([]report.Document, error) {
	var docs []report.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(_, v []byte) error {
			var doc report.Document
			if err := yaml.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}
