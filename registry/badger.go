package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/dgraph-io/badger/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

var (
	recordPrefix = []byte("key/")
	rosterKey    = []byte("meta/roster")
)

// BadgerStore is a [Store] backed by a badger database. Values are CBOR
// encoded.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("registry: create data dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("registry: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

type recordWire struct {
	Key     []byte   `cbor:"1,keyasint,omitempty"`
	Epoch   uint64   `cbor:"2,keyasint,omitempty"`
	Prev    [][]byte `cbor:"3,keyasint,omitempty"`
	Deleted bool     `cbor:"4,keyasint,omitempty"`
}

type rosterWire struct {
	Peers  [][]byte `cbor:"1,keyasint"`
	Admins [][]byte `cbor:"2,keyasint"`
}

func recordKey(id keygen.KeyID) []byte {
	k := make([]byte, len(recordPrefix)+8)
	copy(k, recordPrefix)
	binary.BigEndian.PutUint64(k[len(recordPrefix):], uint64(id))
	return k
}

func encodeRecord(rec *Record) ([]byte, error) {
	w := recordWire{Deleted: rec.Deleted}
	if rec.Key != nil {
		b, _ := rec.Key.Key.MarshalBinary()
		w.Key = b
		w.Epoch = rec.Key.Epoch
	}
	for _, p := range rec.PrevShareCommitments {
		b, _ := p.MarshalBinary()
		w.Prev = append(w.Prev, b)
	}
	return cbor.Marshal(w)
}

func decodeRecord(data []byte) (*Record, error) {
	var w recordWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	rec := &Record{Deleted: w.Deleted}
	if w.Key != nil {
		var p bjj.Point
		if err := p.UnmarshalBinary(w.Key); err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		rec.Key = &keygen.RegisteredKey{Key: p, Epoch: w.Epoch}
	}
	for i, b := range w.Prev {
		var p bjj.Point
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("share commitment %d: %w", i, err)
		}
		rec.PrevShareCommitments = append(rec.PrevShareCommitments, p)
	}
	return rec, nil
}

// LoadRecords decodes every record under the key prefix.
func (s *BadgerStore) LoadRecords() (map[keygen.KeyID]*Record, error) {
	out := make(map[keygen.KeyID]*Record)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			if len(k) != len(recordPrefix)+8 {
				return fmt.Errorf("malformed record key %x", k)
			}
			id := keygen.KeyID(binary.BigEndian.Uint64(k[len(recordPrefix):]))
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("record %s: %w", id, err)
			}
			out[id] = rec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: load records: %w", err)
	}
	return out, nil
}

// SaveRecord encodes rec and writes it for id in one transaction.
func (s *BadgerStore) SaveRecord(id keygen.KeyID, rec *Record) error {
	v, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("registry: encode record %s: %w", id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(id), v)
	})
}

// LoadRoster returns the stored roster, or nil if none was saved.
func (s *BadgerStore) LoadRoster() (*Roster, error) {
	var r *Roster
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rosterKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var w rosterWire
		if err := cbor.Unmarshal(v, &w); err != nil {
			return err
		}
		r = &Roster{}
		for _, b := range w.Peers {
			r.Peers = append(r.Peers, common.BytesToAddress(b))
		}
		for _, b := range w.Admins {
			r.Admins = append(r.Admins, common.BytesToAddress(b))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: load roster: %w", err)
	}
	return r, nil
}

// SaveRoster encodes r and writes it in one transaction.
func (s *BadgerStore) SaveRoster(r *Roster) error {
	var w rosterWire
	for _, a := range r.Peers {
		w.Peers = append(w.Peers, a.Bytes())
	}
	for _, a := range r.Admins {
		w.Admins = append(w.Admins, a.Bytes())
	}
	v, err := cbor.Marshal(w)
	if err != nil {
		return fmt.Errorf("registry: encode roster: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rosterKey, v)
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
