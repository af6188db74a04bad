package registry

import (
	"context"
	"testing"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/internal/fixture"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreRecords(t *testing.T) {
	s, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.LoadRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
	roster, err := s.LoadRoster()
	require.NoError(t, err)
	assert.Nil(t, roster)

	g := bjj.Generator()
	var twoG bjj.Point
	twoG.Add(&g, &g)
	live := &Record{
		Key:                  &keygen.RegisteredKey{Key: g, Epoch: 3},
		PrevShareCommitments: []bjj.Point{g, twoG},
	}
	require.NoError(t, s.SaveRecord(1, live))
	require.NoError(t, s.SaveRecord(2, &Record{Deleted: true}))
	require.NoError(t, s.SaveRoster(&Roster{Peers: peers, Admins: []common.Address{admin}}))

	recs, err = s.LoadRecords()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, live, recs[1])
	assert.True(t, recs[2].Deleted)
	assert.Nil(t, recs[2].Key)

	roster, err = s.LoadRoster()
	require.NoError(t, err)
	assert.Equal(t, peers, roster.Peers)
	assert.Equal(t, []common.Address{admin}, roster.Admins)
}

func TestRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	const deletedID keygen.KeyID = 7

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	r, stop := start(t, Config{Peers: peers, Store: store})

	kd := fixture.NewKeyGen(params, 21)
	keyGen(t, r, keyID, kd)
	keyGen(t, r, deletedID, fixture.NewKeyGen(params, 22))
	require.NoError(t, r.DeleteKey(ctx, admin, deletedID))

	// A session in flight is not persisted.
	require.NoError(t, r.InitReshare(ctx, admin, keyID))
	before, err := r.PublicKeyAndEpoch(ctx, keyID)
	require.NoError(t, err)

	stop()
	require.NoError(t, r.Close())

	store, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	// The stored roster wins over the bootstrap configuration.
	r, stop = start(t, Config{Store: store, Admins: []common.Address{stranger}})
	defer func() {
		stop()
		r.Close()
	}()

	got, err := r.PublicKeyAndEpoch(ctx, keyID)
	require.NoError(t, err)
	assert.Equal(t, before, got)
	_, err = r.PublicKey(ctx, deletedID)
	require.ErrorIs(t, err, keygen.ErrDeletedKeyID)
	require.ErrorIs(t, r.InitKeyGen(ctx, admin, deletedID), keygen.ErrDeletedKeyID)
	require.ErrorIs(t, r.InitKeyGen(ctx, stranger, 99), ErrNotAdmin)

	st, err := r.SessionStatus(ctx, keyID)
	require.NoError(t, err)
	assert.Equal(t, keygen.RoundNotStarted, st.Round)

	// The restored share commitments still admit the original producers.
	producers := []int{0, 2}
	d := fixture.NewReshare(params, kd.Shares(nil), producers, 23)
	require.NoError(t, r.InitReshare(ctx, admin, keyID))
	for i, p := range peers {
		require.NoError(t, r.AddRound1ReshareContribution(ctx, p, keyID, d.Round1(i)))
	}
	for _, i := range producers {
		require.NoError(t, r.AddRound2Contribution(ctx, peers[i], keyID, d.Round2(i)))
	}
	for _, p := range peers {
		require.NoError(t, r.AddRound3Contribution(ctx, p, keyID))
	}
	got, err = r.PublicKeyAndEpoch(ctx, keyID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Epoch)
	assert.True(t, got.Key.Equal(&before.Key))
}
