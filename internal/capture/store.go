package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketExchanges = []byte("exchanges")

// Store is the read-mostly provider contract the analysis engine consumes.
// ListExchangesByHost makes no ordering promise; callers resort where order
// matters.
type Store interface {
	SaveExchange(ex Exchange) error
	ListExchangesByHost(host string) ([]Exchange, error)
	ListHosts() ([]string, error)
	Close() error
}

// BoltStore persists exchanges in BoltDB, one nested bucket per host.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (creating if needed) a BoltDB-backed capture store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketExchanges)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// SaveExchange stores an exchange under its host bucket, keyed by request ID.
func (s *BoltStore) SaveExchange(ex Exchange) error {
	if ex.Request.ID == "" {
		return fmt.Errorf("exchange has no request id")
	}
	if ex.Request.Host == "" {
		return fmt.Errorf("exchange has no host")
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketExchanges)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		hb, err := root.CreateBucketIfNotExists([]byte(ex.Request.Host))
		if err != nil {
			return err
		}
		return hb.Put([]byte(ex.Request.ID), data)
	})
}

// ListExchangesByHost returns every stored exchange for a host. A host with
// no bucket yields an empty slice, not an error.
func (s *BoltStore) ListExchangesByHost(host string) ([]Exchange, error) {
	var out []Exchange

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketExchanges)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		hb := root.Bucket([]byte(host))
		if hb == nil {
			return nil
		}
		return hb.ForEach(func(_, v []byte) error {
			var ex Exchange
			if err := json.Unmarshal(v, &ex); err != nil {
				return fmt.Errorf("failed to unmarshal exchange: %w", err)
			}
			out = append(out, ex)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ListHosts returns all hosts with at least one stored exchange, sorted.
func (s *BoltStore) ListHosts() ([]string, error) {
	var hosts []string

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketExchanges)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		return root.ForEachBucket(func(k []byte) error {
			hosts = append(hosts, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(hosts)
	return hosts, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore keeps exchanges in memory. Used by tests and as the sink for
// short-lived live-feed runs.
type MemoryStore struct {
	mu      sync.RWMutex
	byHost  map[string][]Exchange
	seenIDs map[string]struct{}
}

// NewMemoryStore creates an empty in-memory capture store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHost:  make(map[string][]Exchange),
		seenIDs: make(map[string]struct{}),
	}
}

// SaveExchange stores an exchange, replacing any earlier one with the same ID.
func (s *MemoryStore) SaveExchange(ex Exchange) error {
	if ex.Request.ID == "" {
		return fmt.Errorf("exchange has no request id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	host := ex.Request.Host
	if _, dup := s.seenIDs[ex.Request.ID]; dup {
		list := s.byHost[host]
		for i := range list {
			if list[i].Request.ID == ex.Request.ID {
				list[i] = ex
				return nil
			}
		}
	}
	s.seenIDs[ex.Request.ID] = struct{}{}
	s.byHost[host] = append(s.byHost[host], ex)
	return nil
}

// ListExchangesByHost returns a copy of the stored exchanges for a host.
func (s *MemoryStore) ListExchangesByHost(host string) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byHost[host]
	out := make([]Exchange, len(list))
	copy(out, list)
	return out, nil
}

// ListHosts returns all hosts with stored exchanges, sorted.
func (s *MemoryStore) ListHosts() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]string, 0, len(s.byHost))
	for h := range s.byHost {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
