// Package store keeps downloaded tracks in a local bbolt database so they can
// be listed and exported again without the device.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/shaunagostinho/sq100/internal/track"
)

var bucketTracks = []byte("tracks")

var ErrNotFound = errors.New("track not in archive")

// Entry is an archived track without its samples. Bounds is nil for a track
// without points.
type Entry struct {
	Key    string        `json:"key"`
	Header track.Header  `json:"header"`
	Bounds *track.Bounds `json:"bounds,omitempty"`
}

// Store is a track archive.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTracks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Key identifies a track in the archive: start time then id, so keys sort
// chronologically.
func Key(t *track.Track) string {
	return fmt.Sprintf("%s-%d", t.Date.Format("20060102T150405"), t.ID)
}

// Put archives tracks, replacing any with the same key, and returns their
// keys.
func (s *Store) Put(tracks ...track.Track) ([]string, error) {
	keys := make([]string, 0, len(tracks))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTracks)
		for i := range tracks {
			data, err := json.Marshal(&tracks[i])
			if err != nil {
				return err
			}
			key := Key(&tracks[i])
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: put: %w", err)
	}
	return keys, nil
}

// Get loads one archived track.
func (s *Store) Get(key string) (track.Track, error) {
	var t track.Track
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTracks).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return track.Track{}, fmt.Errorf("store: get: %w", err)
	}
	return t, nil
}

// List returns every archived track header with its bounds, oldest first.
func (s *Store) List() ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTracks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var t track.Track
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			e := Entry{Key: string(k), Header: t.Header}
			if b, ok := t.Bounds(); ok {
				e.Bounds = &b
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return entries, nil
}

// Delete removes a track.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTracks)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}
