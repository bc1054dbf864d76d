// Package journal persists a local record of every dispatch submission, so an
// operator can audit what was handed to the delivery backend and when.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("entries")
	bucketByTime  = []byte("by_time")
)

// Outcome of a recorded submission.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Entry is one dispatch submission.
type Entry struct {
	ID          string    `json:"id"`
	CampaignID  int64     `json:"campaign_id"`
	Type        string    `json:"type"` // "S" immediate, "B" scheduled
	ExecuteAt   string    `json:"execute_at,omitempty"`
	Execute2At  string    `json:"execute2_at,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}

// ListFilter narrows List results.
type ListFilter struct {
	CampaignID int64 // 0 matches all
	Limit      int
	Offset     int
}

// Journal is a BoltDB-backed submission log.
type Journal struct {
	db *bolt.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketByTime} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Record appends an entry, assigning its ID and timestamp when unset.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now()
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if err := tx.Bucket(bucketEntries).Put([]byte(e.ID), data); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}

		indexKey := makeIndexKey(e.SubmittedAt, e.ID)
		if err := tx.Bucket(bucketByTime).Put(indexKey, []byte(e.ID)); err != nil {
			return fmt.Errorf("failed to index entry: %w", err)
		}
		return nil
	})
}

// Get retrieves an entry by ID, nil when absent.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	var entry *Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(id))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})

	return entry, err
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	var entries []*Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		entryBucket := tx.Bucket(bucketEntries)
		c := tx.Bucket(bucketByTime).Cursor()

		count := 0
		skipped := 0

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			data := entryBucket.Get(v)
			if data == nil {
				continue
			}

			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				continue
			}

			if filter.CampaignID != 0 && e.CampaignID != filter.CampaignID {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			entries = append(entries, &e)
			count++

			if filter.Limit > 0 && count >= filter.Limit {
				break
			}
		}

		return nil
	})

	return entries, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// makeIndexKey creates a time-sortable key from timestamp and ID.
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano) + ":" + id)
}
