package registry

import (
	"sync"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/ethereum/go-ethereum/common"
)

// Record is the durable state of one key id. Round-local session data is
// never persisted; a restart resumes every id in RoundNotStarted.
type Record struct {
	// Key is nil before the first key generation finalizes.
	Key *keygen.RegisteredKey
	// PrevShareCommitments validates producers in the next reshare.
	PrevShareCommitments []bjj.Point
	// Deleted is a tombstone. A deleted record has no key.
	Deleted bool
}

// Roster is the durable peer and admin configuration.
type Roster struct {
	// Peers[i] is the address of party i.
	Peers  []common.Address
	Admins []common.Address
}

// Store persists records and the roster. Implementations must make each
// Save call durable before returning.
type Store interface {
	LoadRecords() (map[keygen.KeyID]*Record, error)
	SaveRecord(id keygen.KeyID, rec *Record) error
	// LoadRoster returns nil and no error when no roster was saved.
	LoadRoster() (*Roster, error)
	SaveRoster(r *Roster) error
	Close() error
}

// MemoryStore is a [Store] that keeps everything in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[keygen.KeyID]*Record
	roster  *Roster
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[keygen.KeyID]*Record)}
}

// LoadRecords returns copies of every stored record.
func (m *MemoryStore) LoadRecords() (map[keygen.KeyID]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[keygen.KeyID]*Record, len(m.records))
	for id, rec := range m.records {
		out[id] = rec.clone()
	}
	return out, nil
}

// SaveRecord stores a copy of rec for id, replacing any previous record.
func (m *MemoryStore) SaveRecord(id keygen.KeyID, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec.clone()
	return nil
}

// LoadRoster returns a copy of the stored roster, or nil if none was saved.
func (m *MemoryStore) LoadRoster() (*Roster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.roster == nil {
		return nil, nil
	}
	return m.roster.clone(), nil
}

// SaveRoster stores a copy of r.
func (m *MemoryStore) SaveRoster(r *Roster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = r.clone()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (r *Record) clone() *Record {
	out := &Record{
		PrevShareCommitments: append([]bjj.Point(nil), r.PrevShareCommitments...),
		Deleted:              r.Deleted,
	}
	if r.Key != nil {
		k := *r.Key
		out.Key = &k
	}
	return out
}

func (r *Roster) clone() *Roster {
	return &Roster{
		Peers:  append([]common.Address(nil), r.Peers...),
		Admins: append([]common.Address(nil), r.Admins...),
	}
}
