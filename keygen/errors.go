package keygen

import (
	"errors"
	"fmt"
)

// Structural errors. Every error returned by a [Session] method leaves the
// session unchanged.
var (
	// ErrWrongRound is matched by every [*WrongRoundError].
	ErrWrongRound = errors.New("keygen: wrong round")

	// ErrAlreadySubmitted indicates a second submission by the same party in
	// one round.
	ErrAlreadySubmitted = errors.New("keygen: already submitted")

	// ErrUnknownKeyID indicates there is no key or running session to act on.
	ErrUnknownKeyID = errors.New("keygen: unknown key id")

	// ErrDeletedKeyID indicates the key id was deleted and cannot be reused.
	ErrDeletedKeyID = errors.New("keygen: key id deleted")

	// ErrKeyAlreadyRegistered indicates a key generation for an id that
	// already has a registered key. Use a reshare instead.
	ErrKeyAlreadyRegistered = errors.New("keygen: key already registered")

	// ErrNotParticipant indicates a party id outside the session roster.
	ErrNotParticipant = errors.New("keygen: not a participant")

	// ErrBadContribution is the parent of all malformed-contribution errors.
	ErrBadContribution = errors.New("keygen: bad contribution")

	// ErrInvalidParams indicates an unusable threshold/peer combination.
	ErrInvalidParams = errors.New("keygen: invalid parameters")

	// ErrInvariant indicates internal state that cannot occur through the
	// public operations.
	ErrInvariant = errors.New("keygen: invariant violated")
)

// Contribution errors. All of them match [ErrBadContribution].
var (
	ErrNotProducer          = fmt.Errorf("%w: party is not a producer", ErrBadContribution)
	ErrUnpairedContribution = fmt.Errorf("%w: share commitment and coefficient commitment must both be set or both be empty", ErrBadContribution)
	ErrShareMismatch        = fmt.Errorf("%w: share commitment does not match previous share", ErrBadContribution)
	ErrCiphertextCount      = fmt.Errorf("%w: wrong number of ciphertexts", ErrBadContribution)
	ErrZeroCoefficients     = fmt.Errorf("%w: coefficient commitment is zero", ErrBadContribution)
	ErrFieldElement         = fmt.Errorf("%w: value is not a reduced field element", ErrBadContribution)
	ErrWrongSessionKind     = fmt.Errorf("%w: contribution does not match session kind", ErrBadContribution)
)

// WrongRoundError reports an operation attempted in the wrong round. It
// carries the round the session was actually in.
type WrongRoundError struct {
	Op    string
	Round Round
}

// Error implements error.
func (e *WrongRoundError) Error() string {
	return fmt.Sprintf("keygen: %s not allowed in round %s", e.Op, e.Round)
}

// Is reports whether target is [ErrWrongRound].
func (e *WrongRoundError) Is(target error) bool {
	return target == ErrWrongRound
}

func wrongRound(op string, r Round) error {
	return &WrongRoundError{Op: op, Round: r}
}

func invalidPoint(field string, err error) error {
	return fmt.Errorf("keygen: %s: %w", field, err)
}
