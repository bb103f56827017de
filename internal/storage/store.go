package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ipcollector/internal/domain"
)

const (
	KeyCollectedIPs  = "collectedIPs"
	KeyRegexPatterns = "regexPatterns"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

var ErrNoDatabase = errors.New("storage: database not initialised")

// Change describes one write to a key. OldValue is nil when the key did not
// exist. Revision is the key's revision after the write; zero means unknown.
type Change struct {
	Key      string
	OldValue []byte
	NewValue []byte
	Revision int64
	Source   string
}

type Listener func(Change)

// UpdateFunc receives the current value of a key and returns the value to
// store. Returning a nil slice leaves the key untouched.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

type changePublisher interface {
	publish(Change) error
}

// Store is a JSON key-value store over a single table. Writes are whole-value
// replacements and every effective write is announced to subscribers.
type Store struct {
	db *gorm.DB

	// writeMu serialises writers inside this process; the row lock covers
	// writers in other processes sharing a PostgreSQL database.
	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[uint64]Listener
	nextID      uint64

	publisherMu sync.RWMutex
	publisher   changePublisher
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		listeners: make(map[uint64]Listener),
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, _, exists, err := s.GetRevision(ctx, key)
	return value, exists, err
}

// GetRevision returns the value of key together with its revision.
func (s *Store) GetRevision(ctx context.Context, key string) ([]byte, int64, bool, error) {
	if s.db == nil {
		return nil, 0, false, ErrNoDatabase
	}

	var entry domain.KVEntry
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return []byte(entry.Value), entry.Revision, true, nil
}

// Revision reads only the revision of key. A missing key is at revision 0.
func (s *Store) Revision(ctx context.Context, key string) (int64, error) {
	if s.db == nil {
		return 0, ErrNoDatabase
	}

	var revisions []int64
	err := s.db.WithContext(ctx).Model(&domain.KVEntry{}).
		Where("name = ?", key).
		Limit(1).
		Pluck("revision", &revisions).Error
	if err != nil {
		return 0, fmt.Errorf("storage: revision %s: %w", key, err)
	}
	if len(revisions) == 0 {
		return 0, nil
	}
	return revisions[0], nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, _, err := s.Update(ctx, key, func([]byte, bool) ([]byte, error) {
		return value, nil
	})
	return err
}

// Update runs fn against the current value inside one transaction and stores
// its result. It returns the value held by the key afterwards and its revision.
//
// Listeners are called after the write is committed and may write themselves,
// so they can observe changes out of order. Revision orders them.
func (s *Store) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, int64, error) {
	if s.db == nil {
		return nil, 0, ErrNoDatabase
	}

	s.writeMu.Lock()
	var (
		result   []byte
		revision int64
		change   *Change
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var entry domain.KVEntry
		exists := true
		err := query.Where("name = ?", key).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			exists = false
		} else if err != nil {
			return err
		}

		var current []byte
		if exists {
			current = []byte(entry.Value)
		}
		revision = entry.Revision

		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}
		if exists && bytes.Equal(current, next) {
			result = current
			return nil
		}

		revision = entry.Revision + 1
		if err := upsertEntry(tx, key, next, revision); err != nil {
			return err
		}
		result = next
		change = &Change{Key: key, OldValue: current, NewValue: next, Revision: revision, Source: SourceLocal}
		return nil
	})
	s.writeMu.Unlock()

	if err != nil {
		return nil, 0, fmt.Errorf("storage: update %s: %w", key, err)
	}

	if change != nil {
		s.notify(*change)
		s.broadcast(*change)
	}
	return result, revision, nil
}

func upsertEntry(tx *gorm.DB, key string, value []byte, revision int64) error {
	entry := domain.KVEntry{Name: key, Value: string(value), Revision: revision}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "revision", "updated_at"}),
	}).Create(&entry).Error
}

// Subscribe registers listener for every change and returns a function that removes it.
// Listeners run on the writer's goroutine after its write has committed.
func (s *Store) Subscribe(listener Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// DeliverRemote hands a change made by another instance to local listeners.
func (s *Store) DeliverRemote(change Change) {
	change.Source = SourceRemote
	s.notify(change)
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(change)
	}
}

func (s *Store) setPublisher(p changePublisher) {
	s.publisherMu.Lock()
	s.publisher = p
	s.publisherMu.Unlock()
}

func (s *Store) broadcast(change Change) {
	s.publisherMu.RLock()
	p := s.publisher
	s.publisherMu.RUnlock()

	if p == nil {
		return
	}
	if err := p.publish(change); err != nil {
		log.Error("Storage sync: failed to publish change", "key", change.Key, "error", err)
	}
}
