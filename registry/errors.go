package registry

import (
	"context"
	"errors"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/proof"
)

// Administrative errors.
var (
	// ErrNotAdmin indicates the caller lacks admin rights.
	ErrNotAdmin = errors.New("registry: caller is not an admin")

	// ErrUnknownAdmin indicates a revoke for an address that is not an admin.
	ErrUnknownAdmin = errors.New("registry: address is not an admin")

	// ErrLastAdmin indicates an attempt to revoke the only remaining admin.
	ErrLastAdmin = errors.New("registry: cannot revoke the last admin")

	// ErrRosterSize indicates a roster whose size differs from the configured
	// number of peers.
	ErrRosterSize = errors.New("registry: roster size mismatch")

	// ErrDuplicatePeer indicates the same address twice in a roster.
	ErrDuplicatePeer = errors.New("registry: duplicate peer address")

	// ErrNoRoster indicates a session operation before any roster was
	// registered.
	ErrNoRoster = errors.New("registry: no peer roster registered")

	// ErrSessionsInFlight indicates a roster change while a session is
	// running.
	ErrSessionsInFlight = errors.New("registry: sessions in flight")

	// ErrNoAdmins indicates a configuration without any admin.
	ErrNoAdmins = errors.New("registry: at least one admin is required")

	// ErrStopped indicates the command loop is not running.
	ErrStopped = errors.New("registry: stopped")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{keygen.ErrWrongRound, "wrong_round"},
	{keygen.ErrAlreadySubmitted, "already_submitted"},
	{keygen.ErrUnknownKeyID, "unknown_key_id"},
	{keygen.ErrDeletedKeyID, "deleted_key_id"},
	{keygen.ErrKeyAlreadyRegistered, "key_already_registered"},
	{keygen.ErrNotParticipant, "not_participant"},
	{keygen.ErrNotProducer, "not_producer"},
	{keygen.ErrInvalidParams, "invalid_params"},
	{keygen.ErrBadContribution, "bad_contribution"},
	{bjj.ErrNotOnCurve, "not_on_curve"},
	{bjj.ErrNotInSubgroup, "not_in_subgroup"},
	{bjj.ErrIdentity, "identity_point"},
	{proof.ErrRejected, "proof_rejected"},
	{proof.ErrUnsupportedShape, "unsupported_shape"},
	{ErrNotAdmin, "not_admin"},
	{ErrUnknownAdmin, "unknown_admin"},
	{ErrLastAdmin, "last_admin"},
	{ErrRosterSize, "roster_size"},
	{ErrDuplicatePeer, "duplicate_peer"},
	{ErrNoRoster, "no_roster"},
	{ErrSessionsInFlight, "sessions_in_flight"},
	{ErrStopped, "stopped"},
	{keygen.ErrInvariant, "invariant"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// ErrorKind returns a stable identifier for err, "ok" for nil and
// "internal" for errors outside the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
