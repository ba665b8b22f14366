// Package store persists sync bookkeeping in a bbolt database: the
// per-category last-sync timestamps, the sync configuration state, and
// the cached access token. Category content itself lives in the data
// directory (see internal/appdata); this database only records what has
// been synchronized and when.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/indigoapp/indigo-sync/internal/models"
)

const (
	// storeDirPerm is the permission mode for the state directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	storeOpenTimeout = 5 * time.Second
)

var (
	appBucket       = []byte("app")
	timestampBucket = []byte("sync_ts")
	tokenKey        = []byte("token")
	syncStateKey    = []byte("sync_state")
)

// SyncState is the durable sync configuration. The encryption
// passphrase is deliberately absent: it is supplied via config at
// runtime and must never be written to disk alongside sync metadata.
type SyncState struct {
	Enabled    bool  `json:"enabled"`
	LastSyncAt int64 `json:"lastSyncAt"`
	AutoSync   bool  `json:"autoSync"`
	SyncImages bool  `json:"syncImages"`
}

// Store wraps a bbolt database for all persistent sync bookkeeping.
type Store struct {
	db *bolt.DB
}

// Open opens the store at ~/.indigo-sync/state.db, creating it if it
// does not exist.
func Open() (*Store, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}

	return OpenAt(filepath.Join(dir, ".indigo-sync", "state.db"))
}

// OpenAt opens a store at the given path, creating it if it does not
// exist. Useful for tests that need an isolated database.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(appBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(timestampBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SyncTimestamp returns the epoch-millis time the category was last
// confirmed synchronized, or 0 if it never was.
func (s *Store) SyncTimestamp(category models.Category) int64 {
	var ts int64

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(timestampBucket).Get([]byte(category))
		if len(v) == 8 {
			ts = int64(binary.BigEndian.Uint64(v)) //nolint:gosec // stored by SetSyncTimestamp, always a non-negative unix millis
		}

		return nil
	})

	return ts
}

// SetSyncTimestamp records the epoch-millis time the category was last
// confirmed synchronized.
func (s *Store) SetSyncTimestamp(category models.Category, ts int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(ts)) //nolint:gosec // unix millis are non-negative

		return tx.Bucket(timestampBucket).Put([]byte(category), buf)
	})
}

// ClearSyncTimestamps removes every per-category timestamp. Called
// after cloud data is deleted so the next sync re-bootstraps every
// category by push.
func (s *Store) ClearSyncTimestamps() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, c := range models.Categories() {
			if err := tx.Bucket(timestampBucket).Delete([]byte(c)); err != nil {
				return err
			}
		}

		return nil
	})
}

// SyncState returns the persisted sync configuration, or its zero
// defaults when none has been saved yet.
func (s *Store) SyncState() (SyncState, error) {
	var st SyncState

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(syncStateKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &st)
	})

	return st, err
}

// SetSyncState persists the sync configuration.
func (s *Store) SetSyncState(st SyncState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}

		return tx.Bucket(appBucket).Put(syncStateKey, data)
	})
}

// Token returns the cached access token, or empty string.
func (s *Store) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(tokenKey)
		if v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the access token.
func (s *Store) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
}
