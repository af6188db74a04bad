package registry

import (
	"context"
	"fmt"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/ethereum/go-ethereum/common"
)

// InitKeyGen starts a key generation for id. Admin only.
func (r *Registry) InitKeyGen(ctx context.Context, caller common.Address, id keygen.KeyID) error {
	return r.do(ctx, "init_keygen", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if err := r.requireRoster(); err != nil {
			return err
		}
		_, registered := r.keys[id]
		return r.mutate(id, func(s *keygen.Session) ([]keygen.Event, *keygen.Finalization, error) {
			evs, err := s.InitKeyGen(r.params, registered)
			return evs, nil, err
		})
	})
}

// InitReshare starts a reshare of the key registered for id. Admin only.
func (r *Registry) InitReshare(ctx context.Context, caller common.Address, id keygen.KeyID) error {
	return r.do(ctx, "init_reshare", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if err := r.requireRoster(); err != nil {
			return err
		}
		key := r.keys[id]
		return r.mutate(id, func(s *keygen.Session) ([]keygen.Event, *keygen.Finalization, error) {
			evs, err := s.InitReshare(r.params, key)
			return evs, nil, err
		})
	})
}

// AbortKeyGen aborts the running session for id. Admin only.
func (r *Registry) AbortKeyGen(ctx context.Context, caller common.Address, id keygen.KeyID) error {
	return r.do(ctx, "abort", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		return r.mutate(id, func(s *keygen.Session) ([]keygen.Event, *keygen.Finalization, error) {
			evs, err := s.Abort()
			return evs, nil, err
		})
	})
}

// DeleteKey deletes the key registered for id. The id can never be used
// again. Admin only.
func (r *Registry) DeleteKey(ctx context.Context, caller common.Address, id keygen.KeyID) error {
	return r.do(ctx, "delete", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		_, registered := r.keys[id]
		return r.mutate(id, func(s *keygen.Session) ([]keygen.Event, *keygen.Finalization, error) {
			evs, err := s.Delete(registered)
			return evs, nil, err
		})
	})
}

// participantOp resolves caller to a party id and applies fn to the
// session for id.
func (r *Registry) participantOp(caller common.Address, id keygen.KeyID, fn func(s *keygen.Session, party int) ([]keygen.Event, *keygen.Finalization, error)) error {
	party, err := r.party(caller)
	if err != nil {
		return err
	}
	if _, ok := r.sessions[id]; !ok {
		return keygen.ErrUnknownKeyID
	}
	return r.mutate(id, func(s *keygen.Session) ([]keygen.Event, *keygen.Finalization, error) {
		return fn(s, party)
	})
}

// AddRound1KeyGenContribution records the caller's round-1 key-generation
// contribution.
func (r *Registry) AddRound1KeyGenContribution(ctx context.Context, caller common.Address, id keygen.KeyID, c *keygen.Round1Contribution) error {
	return r.do(ctx, "round1_keygen", func(context.Context) error {
		return r.participantOp(caller, id, func(s *keygen.Session, party int) ([]keygen.Event, *keygen.Finalization, error) {
			evs, err := s.AddRound1KeyGen(party, c)
			return evs, nil, err
		})
	})
}

// AddRound1ReshareContribution records the caller's round-1 reshare
// contribution.
func (r *Registry) AddRound1ReshareContribution(ctx context.Context, caller common.Address, id keygen.KeyID, c *keygen.Round1Contribution) error {
	return r.do(ctx, "round1_reshare", func(context.Context) error {
		return r.participantOp(caller, id, func(s *keygen.Session, party int) ([]keygen.Event, *keygen.Finalization, error) {
			evs, err := s.AddRound1Reshare(party, c)
			return evs, nil, err
		})
	})
}

// AddRound2Contribution records the caller's round-2 contribution after
// its proof has been verified.
func (r *Registry) AddRound2Contribution(ctx context.Context, caller common.Address, id keygen.KeyID, c *keygen.Round2Contribution) error {
	return r.do(ctx, "round2", func(ctx context.Context) error {
		return r.participantOp(caller, id, func(s *keygen.Session, party int) ([]keygen.Event, *keygen.Finalization, error) {
			v, err := r.verifier(id, party, s.Params())
			if err != nil && s.Round() == keygen.RoundTwo {
				return nil, nil, err
			}
			evs, err := s.AddRound2(ctx, party, c, v)
			return evs, nil, err
		})
	})
}

// AddRound3Contribution records the caller's round-3 acknowledgement. The
// last acknowledgement finalizes the session.
func (r *Registry) AddRound3Contribution(ctx context.Context, caller common.Address, id keygen.KeyID) error {
	return r.do(ctx, "round3", func(context.Context) error {
		return r.participantOp(caller, id, func(s *keygen.Session, party int) ([]keygen.Event, *keygen.Finalization, error) {
			return s.AddRound3(party)
		})
	})
}

// registered returns the key for id or the error a read should report.
func (r *Registry) registered(id keygen.KeyID) (*keygen.RegisteredKey, error) {
	if s, ok := r.sessions[id]; ok && s.Round() == keygen.RoundDeleted {
		return nil, keygen.ErrDeletedKeyID
	}
	key, ok := r.keys[id]
	if !ok {
		return nil, keygen.ErrUnknownKeyID
	}
	return key, nil
}

// PublicKey returns the registered public key for id.
func (r *Registry) PublicKey(ctx context.Context, id keygen.KeyID) (bjj.Point, error) {
	k, err := r.PublicKeyAndEpoch(ctx, id)
	return k.Key, err
}

// PublicKeyAndEpoch returns the registered public key for id and the epoch
// of the shares backing it.
func (r *Registry) PublicKeyAndEpoch(ctx context.Context, id keygen.KeyID) (keygen.RegisteredKey, error) {
	var out keygen.RegisteredKey
	err := r.do(ctx, "get_key", func(context.Context) error {
		key, err := r.registered(id)
		if err != nil {
			return err
		}
		out = *key
		return nil
	})
	return out, err
}

// Status summarizes the session of one key id.
type Status struct {
	KeyID          keygen.KeyID          `json:"key_id"`
	Round          keygen.Round          `json:"round"`
	Reshare        bool                  `json:"reshare"`
	GeneratedEpoch uint64                `json:"generated_epoch"`
	Params         *keygen.Params        `json:"params,omitempty"`
	Roles          []keygen.Role         `json:"roles,omitempty"`
	Submitted      []bool                `json:"submitted,omitempty"`
	Lagrange       []bjj.Scalar          `json:"lagrange_coefficients,omitempty"`
	Registered     *keygen.RegisteredKey `json:"registered,omitempty"`
}

// SessionStatus returns the state of the session for id.
func (r *Registry) SessionStatus(ctx context.Context, id keygen.KeyID) (*Status, error) {
	var out *Status
	err := r.do(ctx, "get_session", func(context.Context) error {
		s, ok := r.sessions[id]
		if !ok {
			return keygen.ErrUnknownKeyID
		}
		out = &Status{
			KeyID:          id,
			Round:          s.Round(),
			Reshare:        s.IsReshare(),
			GeneratedEpoch: s.GeneratedEpoch(),
			Roles:          s.Roles(),
			Submitted:      s.Submitted(),
			Lagrange:       s.LagrangeCoefficients(),
		}
		if s.Active() {
			p := s.Params()
			out.Params = &p
		}
		if k, ok := r.keys[id]; ok {
			kc := *k
			out.Registered = &kc
		}
		return nil
	})
	return out, err
}

// EphemeralPublicKeys returns every party's round-1 ephemeral public key
// for the session of id.
func (r *Registry) EphemeralPublicKeys(ctx context.Context, id keygen.KeyID) ([]bjj.Point, error) {
	var out []bjj.Point
	err := r.do(ctx, "get_ephemeral_keys", func(context.Context) error {
		s, ok := r.sessions[id]
		if !ok {
			return keygen.ErrUnknownKeyID
		}
		keys, err := s.EphemeralPublicKeys()
		out = keys
		return err
	})
	return out, err
}

// Ciphertexts returns the round-2 ciphertexts addressed to caller.
func (r *Registry) Ciphertexts(ctx context.Context, caller common.Address, id keygen.KeyID) ([]keygen.SenderCiphertext, error) {
	var out []keygen.SenderCiphertext
	err := r.do(ctx, "get_ciphertexts", func(context.Context) error {
		party, err := r.party(caller)
		if err != nil {
			return err
		}
		s, ok := r.sessions[id]
		if !ok {
			return keygen.ErrUnknownKeyID
		}
		out, err = s.CiphertextsFor(party)
		return err
	})
	return out, err
}

// RegisterPeers replaces the roster. addrs[i] becomes party i. Admin only,
// and refused while any session is running.
func (r *Registry) RegisterPeers(ctx context.Context, caller common.Address, addrs []common.Address) error {
	return r.do(ctx, "register_peers", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if err := r.checkRoster(addrs); err != nil {
			return err
		}
		for id, s := range r.sessions {
			if s.Active() {
				return fmt.Errorf("%w: key %s is in round %s", ErrSessionsInFlight, id, s.Round())
			}
		}
		next := r.roster()
		next.Peers = append([]common.Address(nil), addrs...)
		if err := r.store.SaveRoster(next); err != nil {
			return fmt.Errorf("registry: save roster: %w", err)
		}
		r.setRoster(next)
		r.publish(Event{Event: keygen.Event{Kind: EventPeersRegistered}})
		return nil
	})
}

// Peers returns the roster in party order.
func (r *Registry) Peers(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := r.do(ctx, "get_peers", func(context.Context) error {
		out = append([]common.Address(nil), r.peers...)
		return nil
	})
	return out, err
}

// AddAdmin grants admin rights to addr. Admin only. Adding an existing
// admin is a no-op.
func (r *Registry) AddAdmin(ctx context.Context, caller, addr common.Address) error {
	return r.do(ctx, "add_admin", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if _, ok := r.admins[addr]; ok {
			return nil
		}
		next := r.roster()
		next.Admins = append(next.Admins, addr)
		if err := r.store.SaveRoster(next); err != nil {
			return fmt.Errorf("registry: save roster: %w", err)
		}
		r.setRoster(next)
		r.publish(Event{Event: keygen.Event{Kind: EventAdminAdded}, Address: &addr})
		return nil
	})
}

// RevokeAdmin removes addr from the admin set. Admin only. The last admin
// cannot be revoked.
func (r *Registry) RevokeAdmin(ctx context.Context, caller, addr common.Address) error {
	return r.do(ctx, "revoke_admin", func(context.Context) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if _, ok := r.admins[addr]; !ok {
			return ErrUnknownAdmin
		}
		if len(r.admins) == 1 {
			return ErrLastAdmin
		}
		next := r.roster()
		admins := next.Admins[:0]
		for _, a := range next.Admins {
			if a != addr {
				admins = append(admins, a)
			}
		}
		next.Admins = admins
		if err := r.store.SaveRoster(next); err != nil {
			return fmt.Errorf("registry: save roster: %w", err)
		}
		r.setRoster(next)
		r.publish(Event{Event: keygen.Event{Kind: EventAdminRevoked}, Address: &addr})
		return nil
	})
}

// IsAdmin reports whether addr holds admin rights.
func (r *Registry) IsAdmin(ctx context.Context, addr common.Address) (bool, error) {
	var ok bool
	err := r.do(ctx, "is_admin", func(context.Context) error {
		_, ok = r.admins[addr]
		return nil
	})
	return ok, err
}
