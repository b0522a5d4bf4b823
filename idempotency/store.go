// Package idempotency keeps the responses of mutating requests in BoltDB so a
// client retrying with the same Idempotency-Key gets the original answer
// instead of a second acceptance or payment.
package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "responses"

var ErrNotFound = errors.New("idempotent response not found")

// Response is a recorded HTTP answer. Fingerprint identifies the request
// (method, path, body hash) the key was first used with.
type Response struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (or creates) the database file and its bucket. Responses older
// than ttl are treated as absent; ttl <= 0 keeps them forever.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) expired(r *Response) bool {
	return s.ttl > 0 && s.now().Sub(r.CreatedAt) > s.ttl
}

func (s *Store) Get(key string) (*Response, error) {
	var r Response
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, err
	}
	if s.expired(&r) {
		return nil, ErrNotFound
	}
	return &r, nil
}

// Save stores r unless a live response already exists under its key.
// It returns the stored response and whether this call wrote it.
func (s *Store) Save(r *Response) (*Response, bool, error) {
	var result Response
	written := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if existing := b.Get([]byte(r.Key)); existing != nil {
			if err := json.Unmarshal(existing, &result); err != nil {
				return err
			}
			if !s.expired(&result) {
				return nil
			}
		}

		r.CreatedAt = s.now().UTC()
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		result = *r
		written = true
		return b.Put([]byte(r.Key), data)
	})
	if err != nil {
		return nil, false, err
	}
	return &result, written, nil
}

// Purge deletes expired responses and returns how many were removed.
func (s *Store) Purge() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var r Response
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if s.expired(&r) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
