package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var bucketHistory = []byte("history")

// ErrLocked is returned by Open when another process holds the journal
var ErrLocked = errors.New("history journal is locked by another process")

// Entry statuses
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Entry is one submission attempt. Only a preview of the message is kept.
type Entry struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Groups     []string  `json:"groups"`
	Preview    string    `json:"preview"`
	Length     int       `json:"length"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Storage is a bbolt-backed journal of submission attempts
type Storage struct {
	db *bolt.DB
}

// Open opens (or creates) the journal file
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s, err := NewStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStorage creates a journal on an already opened BoltDB
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Save appends an entry
func (s *Storage) Save(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).Put(makeKey(e.CreatedAt, e.ID), data)
	})
}

// List returns up to limit entries, newest first. A limit of zero or less returns all.
func (s *Storage) List(ctx context.Context, limit int) ([]*Entry, error) {
	var entries []*Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, &e)

			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Count returns the number of stored entries
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketHistory).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

// makeKey builds a fixed-width, time-ordered key
func makeKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("20060102T150405.000000000") + ":" + id)
}
