package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/proof"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Config configures a [Registry].
type Config struct {
	// NumPeers and Threshold fix the roster shape of every session.
	NumPeers  int
	Threshold int

	// Admins bootstraps the admin set when the store holds no roster.
	Admins []common.Address
	// Peers optionally bootstraps the roster when the store holds none.
	Peers []common.Address

	// Verifiers must hold a verifier for (Threshold, NumPeers).
	Verifiers *proof.Set

	// Store defaults to a [MemoryStore].
	Store Store
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
	// Metrics defaults to a fresh [NewMetrics] collector set.
	Metrics *Metrics
	// EventRetention is the number of events kept for since-queries.
	EventRetention int
}

// Registry maps key ids to sessions and registered keys and serializes
// every operation through a single command loop started by [Registry.Run].
type Registry struct {
	params    keygen.Params
	verifiers *proof.Set
	store     Store
	log       zerolog.Logger
	metrics   *Metrics
	events    *eventLog

	cmds    chan command
	stopped chan struct{}
	running atomic.Bool

	// Owned by the command loop.
	sessions map[keygen.KeyID]*keygen.Session
	keys     map[keygen.KeyID]*keygen.RegisteredKey
	peers    []common.Address
	peerIdx  map[common.Address]int
	admins   map[common.Address]struct{}
}

type command struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// New builds a registry and restores durable state from cfg.Store.
func New(cfg Config) (*Registry, error) {
	p := keygen.Params{NumPeers: cfg.NumPeers, Threshold: cfg.Threshold}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cfg.Verifiers == nil {
		return nil, fmt.Errorf("%w: no verifiers configured", proof.ErrUnsupportedShape)
	}
	if _, err := cfg.Verifiers.Lookup(p.Threshold, p.NumPeers); err != nil {
		return nil, err
	}

	r := &Registry{
		params:    p,
		verifiers: cfg.Verifiers,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		cmds:      make(chan command),
		stopped:   make(chan struct{}),
		sessions:  make(map[keygen.KeyID]*keygen.Session),
		keys:      make(map[keygen.KeyID]*keygen.RegisteredKey),
		peerIdx:   make(map[common.Address]int),
		admins:    make(map[common.Address]struct{}),
	}
	if r.store == nil {
		r.store = NewMemoryStore()
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("component", "registry").Logger()
	} else {
		r.log = zerolog.Nop()
	}
	if r.metrics == nil {
		r.metrics = NewMetrics("")
	}
	r.events = newEventLog(cfg.EventRetention, r.metrics.eventsDropped.Inc)

	if err := r.restore(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) restore(cfg Config) error {
	records, err := r.store.LoadRecords()
	if err != nil {
		return err
	}
	for id, rec := range records {
		if rec.Deleted {
			r.sessions[id] = keygen.RestoreSession(id, nil, true)
			continue
		}
		if rec.Key != nil {
			k := *rec.Key
			r.keys[id] = &k
		}
		r.sessions[id] = keygen.RestoreSession(id, rec.PrevShareCommitments, false)
	}

	roster, err := r.store.LoadRoster()
	if err != nil {
		return err
	}
	if roster == nil {
		if len(cfg.Admins) == 0 {
			return ErrNoAdmins
		}
		roster = &Roster{Admins: cfg.Admins}
		if len(cfg.Peers) > 0 {
			if err := r.checkRoster(cfg.Peers); err != nil {
				return err
			}
			roster.Peers = cfg.Peers
		}
		if err := r.store.SaveRoster(roster); err != nil {
			return fmt.Errorf("registry: save roster: %w", err)
		}
	}
	if len(roster.Admins) == 0 {
		return ErrNoAdmins
	}
	if len(roster.Peers) > 0 && len(roster.Peers) != r.params.NumPeers {
		return fmt.Errorf("%w: stored roster has %d peers, configured %d", ErrRosterSize, len(roster.Peers), r.params.NumPeers)
	}
	r.setRoster(roster)

	r.log.Info().
		Int("keys", len(r.keys)).
		Int("sessions", len(r.sessions)).
		Int("peers", len(r.peers)).
		Int("admins", len(r.admins)).
		Msg("restored")
	r.observeSessions()
	return nil
}

func (r *Registry) setRoster(roster *Roster) {
	r.peers = append([]common.Address(nil), roster.Peers...)
	r.peerIdx = make(map[common.Address]int, len(r.peers))
	for i, a := range r.peers {
		r.peerIdx[a] = i
	}
	r.admins = make(map[common.Address]struct{}, len(roster.Admins))
	for _, a := range roster.Admins {
		r.admins[a] = struct{}{}
	}
}

func (r *Registry) roster() *Roster {
	out := &Roster{Peers: append([]common.Address(nil), r.peers...)}
	for a := range r.admins {
		out.Admins = append(out.Admins, a)
	}
	return out
}

// Run processes commands until ctx is done. It must be called exactly once.
func (r *Registry) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("registry: already running")
	}
	defer close(r.stopped)

	r.log.Info().Stringer("params", proof.Shape{Threshold: r.params.Threshold, NumPeers: r.params.NumPeers}).Msg("command loop started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("command loop stopped")
			return nil
		case cmd := <-r.cmds:
			cmd.done <- cmd.fn(cmd.ctx)
		}
	}
}

// Close closes the store. Call it after Run has returned.
func (r *Registry) Close() error {
	return r.store.Close()
}

// do runs fn on the command loop and waits for its result.
func (r *Registry) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cmd := command{ctx: ctx, fn: fn, done: make(chan error, 1)}
	var err error
	select {
	case r.cmds <- cmd:
		err = <-cmd.done
	case <-ctx.Done():
		err = ctx.Err()
	case <-r.stopped:
		err = ErrStopped
	}
	r.metrics.observeOp(op, err)
	if err != nil {
		r.log.Debug().Str("op", op).Str("result", ErrorKind(err)).Err(err).Msg("rejected")
	}
	return err
}

// mutate applies fn to a clone of the session for id. The clone replaces
// the session only if fn succeeds and any resulting durable write succeeds.
func (r *Registry) mutate(id keygen.KeyID, fn func(s *keygen.Session) ([]keygen.Event, *keygen.Finalization, error)) error {
	cur, ok := r.sessions[id]
	if !ok {
		cur = keygen.NewSession(id)
	}
	next := cur.Clone()
	evs, fin, err := fn(next)
	if err != nil {
		return err
	}

	var key *keygen.RegisteredKey
	switch {
	case fin != nil:
		key = r.finalizedKey(id, fin)
		rec := &Record{Key: key, PrevShareCommitments: fin.ShareCommitments}
		if err := r.store.SaveRecord(id, rec); err != nil {
			return fmt.Errorf("registry: persist key %s: %w", id, err)
		}
	case next.Round() == keygen.RoundDeleted && cur.Round() != keygen.RoundDeleted:
		if err := r.store.SaveRecord(id, &Record{Deleted: true}); err != nil {
			return fmt.Errorf("registry: persist deletion of %s: %w", id, err)
		}
	}

	r.sessions[id] = next
	if key != nil {
		r.keys[id] = key
	}
	if next.Round() == keygen.RoundDeleted {
		delete(r.keys, id)
	}
	r.observeSessions()
	r.publish(wrap(evs)...)
	return nil
}

func (r *Registry) finalizedKey(id keygen.KeyID, fin *keygen.Finalization) *keygen.RegisteredKey {
	if fin.KeyGen {
		return &keygen.RegisteredKey{Key: fin.Key, Epoch: 0}
	}
	// A reshare keeps the registered key and moves its epoch.
	return &keygen.RegisteredKey{Key: r.keys[id].Key, Epoch: fin.Epoch}
}

func wrap(evs []keygen.Event) []Event {
	out := make([]Event, len(evs))
	for i, ev := range evs {
		out[i] = Event{Event: ev}
	}
	return out
}

func (r *Registry) publish(evs ...Event) {
	for _, ev := range r.events.publish(evs...) {
		r.metrics.observeEvent(ev.Kind)
		r.log.Info().
			Uint64("seq", ev.Seq).
			Str("kind", string(ev.Kind)).
			Stringer("key_id", ev.KeyID).
			Uint64("epoch", ev.Epoch).
			Msg("event")
	}
}

func (r *Registry) observeSessions() {
	counts := make(map[keygen.Round]int)
	for _, s := range r.sessions {
		counts[s.Round()]++
	}
	r.metrics.observeSessions(counts)
}

func (r *Registry) requireAdmin(caller common.Address) error {
	if _, ok := r.admins[caller]; !ok {
		return ErrNotAdmin
	}
	return nil
}

func (r *Registry) requireRoster() error {
	if len(r.peers) != r.params.NumPeers {
		return ErrNoRoster
	}
	return nil
}

func (r *Registry) party(caller common.Address) (int, error) {
	i, ok := r.peerIdx[caller]
	if !ok {
		return 0, keygen.ErrNotParticipant
	}
	return i, nil
}

func (r *Registry) checkRoster(addrs []common.Address) error {
	if len(addrs) != r.params.NumPeers {
		return fmt.Errorf("%w: got %d, want %d", ErrRosterSize, len(addrs), r.params.NumPeers)
	}
	seen := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePeer, a.Hex())
		}
		seen[a] = struct{}{}
	}
	return nil
}

// Events returns retained events with a sequence number above since.
func (r *Registry) Events(since uint64) []Event {
	return r.events.since(since)
}

// Subscribe delivers every future event on the returned channel until
// cancel is called. Events are dropped for a subscriber whose buffer is
// full.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	return r.events.subscribe(buffer)
}

// Metrics returns the registry's collectors.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Params returns the configured roster shape.
func (r *Registry) Params() keygen.Params {
	return r.params
}
