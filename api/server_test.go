package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TaceoLabs/oprf-key-registry/internal/fixture"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/proof"
	"github.com/TaceoLabs/oprf-key-registry/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = common.HexToAddress("0xa000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0xb000000000000000000000000000000000000001")
	peers    = []common.Address{
		common.HexToAddress("0x1000000000000000000000000000000000000001"),
		common.HexToAddress("0x1000000000000000000000000000000000000002"),
		common.HexToAddress("0x1000000000000000000000000000000000000003"),
	}
	params = keygen.Params{NumPeers: 3, Threshold: 2}
)

type client struct {
	t   *testing.T
	url string
}

func newTestServer(t *testing.T) *client {
	t.Helper()
	set := proof.NewSet()
	set.Register(2, 3, proof.AcceptAll{})
	reg, err := registry.New(registry.Config{
		NumPeers:  3,
		Threshold: 2,
		Admins:    []common.Address{admin},
		Verifiers: set,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx) }()

	srv := httptest.NewServer(New(reg, Options{TrustCallerHeader: true, Metrics: reg.Metrics().Handler()}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &client{t: t, url: srv.URL}
}

// call sends body as JSON and returns the status and raw response.
func (c *client) call(method, path string, caller *common.Address, body any) (int, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.url+path, rd)
	require.NoError(c.t, err)
	if caller != nil {
		req.Header.Set(HeaderPeerAddress, caller.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

func (c *client) ok(method, path string, caller *common.Address, body any) []byte {
	c.t.Helper()
	status, out := c.call(method, path, caller, body)
	require.Equal(c.t, http.StatusOK, status, string(out))
	return out
}

func (c *client) fails(method, path string, caller *common.Address, body any, wantStatus int, wantKind string) {
	c.t.Helper()
	status, out := c.call(method, path, caller, body)
	require.Equal(c.t, wantStatus, status, string(out))
	var e errorResponse
	require.NoError(c.t, json.Unmarshal(out, &e))
	assert.Equal(c.t, wantKind, e.Error)
}

func TestKeyGenOverHTTP(t *testing.T) {
	c := newTestServer(t)
	d := fixture.NewKeyGen(params, 42)

	c.ok(http.MethodPut, "/v1/peers", &admin, peersRequest{Peers: peers})
	var got peersRequest
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, "/v1/peers", nil, nil), &got))
	assert.Equal(t, peers, got.Peers)

	c.ok(http.MethodPost, "/v1/keys/42/keygen", &admin, nil)
	for i := range peers {
		c.ok(http.MethodPost, "/v1/keys/42/round1/keygen", &peers[i], d.Round1(i))
	}

	assert.Equal(t, "ROUND_TWO", roundName(t, c, "/v1/keys/42/session"))

	for i := range peers {
		c.ok(http.MethodPost, "/v1/keys/42/round2", &peers[i], d.Round2(i))
	}

	var cts []keygen.SenderCiphertext
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, "/v1/keys/42/ciphertexts", &peers[1], nil), &cts))
	require.Len(t, cts, 3)
	share := d.Decrypt(1, cts[2].From, &cts[2].Ciphertext)
	want := d.Polys[2].EvalAt(1)
	assert.True(t, share.Equal(&want))

	for i := range peers {
		c.ok(http.MethodPost, "/v1/keys/42/round3", &peers[i], nil)
	}

	var key keygen.RegisteredKey
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, "/v1/keys/42", nil, nil), &key))
	pk := d.PublicKey(nil)
	assert.True(t, key.Key.Equal(&pk))
	assert.Equal(t, uint64(0), key.Epoch)

	var evs []registry.Event
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, "/v1/events?since=1", nil, nil), &evs))
	require.Len(t, evs, 4)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, keygen.EventSecretGenRound1, evs[0].Kind)
	assert.Equal(t, keygen.EventSecretGenFinalize, evs[3].Kind)

	status, body := c.call(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "oprf_keygen_operations_total")
}

func roundName(t *testing.T, c *client, path string) string {
	t.Helper()
	var raw struct {
		Round string `json:"round"`
	}
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, path, nil, nil), &raw))
	return raw.Round
}

func TestErrorMapping(t *testing.T) {
	c := newTestServer(t)
	d := fixture.NewKeyGen(params, 7)

	c.fails(http.MethodPost, "/v1/keys/1/keygen", nil, nil, http.StatusUnauthorized, "unauthenticated")
	c.fails(http.MethodPost, "/v1/keys/1/keygen", &stranger, nil, http.StatusForbidden, "not_admin")
	c.fails(http.MethodPost, "/v1/keys/1/keygen", &admin, nil, http.StatusConflict, "no_roster")
	c.fails(http.MethodPut, "/v1/peers", &admin, peersRequest{Peers: peers[:2]}, http.StatusUnprocessableEntity, "roster_size")
	c.ok(http.MethodPut, "/v1/peers", &admin, peersRequest{Peers: peers})

	c.fails(http.MethodGet, "/v1/keys/1", nil, nil, http.StatusNotFound, "unknown_key_id")
	c.fails(http.MethodGet, "/v1/keys/abc", nil, nil, http.StatusBadRequest, "bad_request")
	c.fails(http.MethodGet, "/v1/events?since=x", nil, nil, http.StatusBadRequest, "bad_request")

	c.ok(http.MethodPost, "/v1/keys/1/keygen", &admin, nil)
	c.fails(http.MethodPost, "/v1/keys/1/round2", &peers[0], d.Round2(0), http.StatusConflict, "wrong_round")
	c.fails(http.MethodPost, "/v1/keys/1/round1/keygen", &stranger, d.Round1(0), http.StatusForbidden, "not_participant")
	c.fails(http.MethodPost, "/v1/keys/1/round1/keygen", &peers[0], map[string]string{"bogus": "1"}, http.StatusBadRequest, "bad_request")
	c.ok(http.MethodPost, "/v1/keys/1/round1/keygen", &peers[0], d.Round1(0))
	c.fails(http.MethodPost, "/v1/keys/1/round1/keygen", &peers[0], d.Round1(0), http.StatusConflict, "already_submitted")

	zero := d.Round1(1)
	zero.CommCoeffs = big.NewInt(0)
	c.fails(http.MethodPost, "/v1/keys/1/round1/keygen", &peers[1], zero, http.StatusUnprocessableEntity, "bad_contribution")

	c.fails(http.MethodGet, "/v1/keys/1/ephemeral-keys", nil, nil, http.StatusConflict, "wrong_round")
	c.ok(http.MethodPost, "/v1/keys/1/abort", &admin, nil)
	c.fails(http.MethodPost, "/v1/keys/1/abort", &admin, nil, http.StatusNotFound, "unknown_key_id")

	c.fails(http.MethodDelete, "/v1/admins/"+admin.Hex(), &admin, nil, http.StatusConflict, "last_admin")
	c.fails(http.MethodDelete, "/v1/admins/nope", &admin, nil, http.StatusBadRequest, "bad_request")
}

func TestDeletedKey(t *testing.T) {
	c := newTestServer(t)
	d := fixture.NewKeyGen(params, 8)
	c.ok(http.MethodPut, "/v1/peers", &admin, peersRequest{Peers: peers})
	c.ok(http.MethodPost, "/v1/keys/5/keygen", &admin, nil)
	for i := range peers {
		c.ok(http.MethodPost, "/v1/keys/5/round1/keygen", &peers[i], d.Round1(i))
	}
	for i := range peers {
		c.ok(http.MethodPost, "/v1/keys/5/round2", &peers[i], d.Round2(i))
	}
	for i := range peers {
		c.ok(http.MethodPost, "/v1/keys/5/round3", &peers[i], nil)
	}

	c.ok(http.MethodDelete, "/v1/keys/5", &admin, nil)
	c.fails(http.MethodGet, "/v1/keys/5", nil, nil, http.StatusGone, "deleted_key_id")
	c.fails(http.MethodPost, "/v1/keys/5/keygen", &admin, nil, http.StatusGone, "deleted_key_id")
	c.fails(http.MethodPost, "/v1/keys/5/reshare", &admin, nil, http.StatusGone, "deleted_key_id")
}

func TestAdminsOverHTTP(t *testing.T) {
	c := newTestServer(t)
	other := common.HexToAddress("0xa000000000000000000000000000000000000002")

	c.ok(http.MethodPost, "/v1/admins", &admin, adminRequest{Address: other})
	var resp adminResponse
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, "/v1/admins/"+other.Hex(), nil, nil), &resp))
	assert.True(t, resp.Admin)

	c.ok(http.MethodDelete, "/v1/admins/"+admin.Hex(), &other, nil)
	require.NoError(t, json.Unmarshal(c.ok(http.MethodGet, "/v1/admins/"+admin.Hex(), nil, nil), &resp))
	assert.False(t, resp.Admin)
}

func TestStatusFor(t *testing.T) {
	for kind, want := range map[string]int{
		"not_admin":       http.StatusForbidden,
		"unknown_key_id":  http.StatusNotFound,
		"deleted_key_id":  http.StatusGone,
		"wrong_round":     http.StatusConflict,
		"proof_rejected":  http.StatusUnprocessableEntity,
		"not_in_subgroup": http.StatusUnprocessableEntity,
		"stopped":         http.StatusServiceUnavailable,
		"internal":        http.StatusInternalServerError,
	} {
		assert.Equal(t, want, statusFor(kind), kind)
	}
}

func TestCallerIdentity(t *testing.T) {
	addr := peers[1]
	withCert := func(cn string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{{Subject: pkix.Name{CommonName: cn}}}}
		return req
	}

	strict := &Server{}
	got, err := strict.caller(withCert(addr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = strict.caller(withCert("peer-1.example.com"))
	require.ErrorIs(t, err, errUnauthenticated)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderPeerAddress, strings.ToLower(addr.Hex()))
	_, err = strict.caller(req)
	require.ErrorIs(t, err, errUnauthenticated, "header ignored unless trusted")

	trusting := &Server{opts: Options{TrustCallerHeader: true}}
	got, err = trusting.caller(req)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}
