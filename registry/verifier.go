package registry

import (
	"context"
	"time"

	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/proof"
	"github.com/rs/zerolog"
)

// observedVerifier logs and counts every verification it forwards.
type observedVerifier struct {
	next    proof.Verifier
	log     zerolog.Logger
	metrics *Metrics
}

func (r *Registry) verifier(id keygen.KeyID, party int, p keygen.Params) (proof.Verifier, error) {
	v, err := r.verifiers.Lookup(p.Threshold, p.NumPeers)
	if err != nil {
		return nil, err
	}
	return &observedVerifier{
		next:    v,
		log:     r.log.With().Stringer("key_id", id).Int("party", party).Logger(),
		metrics: r.metrics,
	}, nil
}

func (v *observedVerifier) Verify(ctx context.Context, c proof.Compressed, in proof.Inputs) error {
	start := time.Now()
	err := v.next.Verify(ctx, c, in)
	elapsed := time.Since(start)
	v.metrics.observeVerify(err, elapsed)

	ev := v.log.Debug()
	if err != nil {
		ev = v.log.Warn().Err(err)
	}
	ev.Str("inputs", proof.DigestHex(in)).
		Int("num_inputs", len(in)).
		Dur("elapsed", elapsed).
		Msg("proof verification")
	return err
}
