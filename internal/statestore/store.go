package statestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the declared value type of a property.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Descriptor describes a declared property. Role tags and read/write
// flags are preserved verbatim for consumers of the bus.
type Descriptor struct {
	Type  Type     `json:"type"`
	Read  bool     `json:"read"`
	Write bool     `json:"write"`
	Role  string   `json:"role"`
	Desc  string   `json:"desc,omitempty"`
	Unit  string   `json:"unit,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Def   any      `json:"def,omitempty"`
}

// Value is the last-known value of a property. Ack distinguishes
// observed state (true) from a pending command (false). From carries
// the origin tag of the writer.
type Value struct {
	Val       any       `json:"val"`
	Ack       bool      `json:"ack"`
	From      string    `json:"from"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeFunc receives every committed write.
type ChangeFunc func(name string, v Value)

// Store is the property bus: declared descriptors plus last-known
// values, with synchronous change fan-out and optional SQLite
// persistence. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	db          *dbPair // nil for in-memory stores
	descriptors map[string]Descriptor
	values      map[string]Value
	binaries    map[string][]byte
	subs        map[int]ChangeFunc
	nextSub     int
}

// NewMemory creates a store without persistence, for tests and
// embedded use.
func NewMemory() *Store {
	return &Store{
		descriptors: make(map[string]Descriptor),
		values:      make(map[string]Value),
		binaries:    make(map[string][]byte),
		subs:        make(map[int]ChangeFunc),
	}
}

// Open creates a store persisted at the given SQLite path and
// rehydrates all previously stored descriptors and values.
func Open(dbPath string) (*Store, error) {
	pair, err := initDB(dbPath)
	if err != nil {
		return nil, err
	}
	s := NewMemory()
	s.db = pair
	if err := s.loadAll(); err != nil {
		pair.Close()
		return nil, fmt.Errorf("load properties: %w", err)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewOrigin returns a stable origin tag for one bus client.
func NewOrigin() string {
	return "system.cast-hub." + uuid.NewString()
}

// DeclareProperty upserts a property descriptor. Declaration is
// idempotent and never overwrites a stored value; when no value
// exists and the descriptor carries a default, the default is seeded
// as acknowledged state.
func (s *Store) DeclareProperty(name string, d Descriptor) error {
	s.mu.Lock()
	s.descriptors[name] = d
	_, hasValue := s.values[name]
	var seeded *Value
	if !hasValue && d.Def != nil {
		v := Value{Val: d.Def, Ack: true, From: "system.cast-hub.declare", UpdatedAt: time.Now()}
		s.values[name] = v
		seeded = &v
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.persistDescriptor(name, d); err != nil {
			return err
		}
		if seeded != nil {
			if err := s.persistValue(name, *seeded); err != nil {
				return err
			}
		}
	}
	if seeded != nil {
		s.notify(name, *seeded)
	}
	return nil
}

// Descriptor returns the declared descriptor for a property.
func (s *Store) Descriptor(name string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[name]
	return d, ok
}

// GetValue returns the last-known value of a property.
func (s *Store) GetValue(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// SetValue commits a write and fans it out to all subscribers.
func (s *Store) SetValue(name string, val any, ack bool, origin string) error {
	v := Value{Val: val, Ack: ack, From: origin, UpdatedAt: time.Now()}

	s.mu.Lock()
	s.values[name] = v
	s.mu.Unlock()

	if s.db != nil {
		if err := s.persistValue(name, v); err != nil {
			return err
		}
	}
	s.notify(name, v)
	return nil
}

// SetBinary stores a binary payload under a property. The change
// notification carries the payload length, not the bytes.
func (s *Store) SetBinary(name string, payload []byte, origin string) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	v := Value{Val: len(buf), Ack: true, From: origin, UpdatedAt: time.Now()}

	s.mu.Lock()
	s.binaries[name] = buf
	s.values[name] = v
	s.mu.Unlock()

	if s.db != nil {
		if err := s.persistBinary(name, buf); err != nil {
			return err
		}
		if err := s.persistValue(name, v); err != nil {
			return err
		}
	}
	s.notify(name, v)
	return nil
}

// GetBinary returns the stored payload for a binary property.
func (s *Store) GetBinary(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.binaries[name]
	if !ok {
		return nil, false
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return buf, true
}

// Subscribe registers a change callback and returns its unsubscribe
// function. Callbacks run synchronously on the writer's goroutine and
// may call back into the store.
func (s *Store) Subscribe(fn ChangeFunc) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// List returns the declared properties matching a name prefix.
func (s *Store) List(prefix string) map[string]Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]Descriptor)
	for name, d := range s.descriptors {
		if prefix == "" || hasPrefix(name, prefix) {
			result[name] = d
		}
	}
	return result
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func (s *Store) notify(name string, v Value) {
	s.mu.RLock()
	fns := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(name, v)
	}
}
