// Package history keeps a local log of completed sends for the dashboard.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketHistory = []byte("history")

// Entry is one completed send
type Entry struct {
	ID          string    `json:"id"`
	MailingID   int64     `json:"mailing_id"`
	Subject     string    `json:"subject"`
	Recipients  int       `json:"recipients"`
	Attachments int       `json:"attachments"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	SentAt      time.Time `json:"sent_at"`
}

// Storage stores send history in BoltDB
type Storage struct {
	db *bolt.DB
}

// Open opens (or creates) the history database at path
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return db, nil
}

// NewStorage creates history storage on top of an open database
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

// Save records an entry. Missing ID and SentAt are filled in.
func (s *Storage) Save(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal history entry: %w", err)
		}
		return tx.Bucket(bucketHistory).Put(makeKey(e.SentAt, e.ID), data)
	})
}

// List returns up to limit entries, newest first. A limit of 0 returns all.
func (s *Storage) List(ctx context.Context, limit int) ([]*Entry, error) {
	var entries []*Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
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

	return entries, err
}

// Count returns the number of recorded sends
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketHistory).Stats().KeyN
		return nil
	})
	return n, err
}

// Prune removes entries older than maxAge and returns how many were removed
func (s *Storage) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := makeKey(time.Now().Add(-maxAge), "")
	var count int

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketHistory)
		c := bucket.Cursor()

		var keysToDelete [][]byte
		for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.Next() {
			keysToDelete = append(keysToDelete, append([]byte(nil), k...))
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// keys sort chronologically: fixed-width UTC timestamp then id
func makeKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
