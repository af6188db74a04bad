package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// HeaderPeerAddress carries the caller address when Options.TrustCallerHeader
// is set.
const HeaderPeerAddress = "X-Peer-Address"

const maxBodySize = 1 << 20

// Coordinator is the registry surface served over HTTP.
type Coordinator interface {
	InitKeyGen(ctx context.Context, caller common.Address, id keygen.KeyID) error
	InitReshare(ctx context.Context, caller common.Address, id keygen.KeyID) error
	AbortKeyGen(ctx context.Context, caller common.Address, id keygen.KeyID) error
	DeleteKey(ctx context.Context, caller common.Address, id keygen.KeyID) error
	AddRound1KeyGenContribution(ctx context.Context, caller common.Address, id keygen.KeyID, c *keygen.Round1Contribution) error
	AddRound1ReshareContribution(ctx context.Context, caller common.Address, id keygen.KeyID, c *keygen.Round1Contribution) error
	AddRound2Contribution(ctx context.Context, caller common.Address, id keygen.KeyID, c *keygen.Round2Contribution) error
	AddRound3Contribution(ctx context.Context, caller common.Address, id keygen.KeyID) error
	PublicKeyAndEpoch(ctx context.Context, id keygen.KeyID) (keygen.RegisteredKey, error)
	SessionStatus(ctx context.Context, id keygen.KeyID) (*registry.Status, error)
	EphemeralPublicKeys(ctx context.Context, id keygen.KeyID) ([]bjj.Point, error)
	Ciphertexts(ctx context.Context, caller common.Address, id keygen.KeyID) ([]keygen.SenderCiphertext, error)
	RegisterPeers(ctx context.Context, caller common.Address, addrs []common.Address) error
	Peers(ctx context.Context) ([]common.Address, error)
	AddAdmin(ctx context.Context, caller, addr common.Address) error
	RevokeAdmin(ctx context.Context, caller, addr common.Address) error
	IsAdmin(ctx context.Context, addr common.Address) (bool, error)
	Events(since uint64) []registry.Event
}

// Options configures a [Server].
type Options struct {
	// TrustCallerHeader accepts the caller address from HeaderPeerAddress.
	// Only enable it behind a proxy that authenticates callers.
	TrustCallerHeader bool
	// Metrics, if set, is served at /metrics.
	Metrics http.Handler
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Server routes HTTP requests to a [Coordinator].
type Server struct {
	coord Coordinator
	opts  Options
	log   zerolog.Logger
	mux   *http.ServeMux
}

// New returns a server for coord.
func New(coord Coordinator, opts Options) *Server {
	s := &Server{coord: coord, opts: opts, mux: http.NewServeMux()}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "api").Logger()
	} else {
		s.log = zerolog.Nop()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/keys/{id}/keygen", s.keyOp(s.coord.InitKeyGen))
	s.mux.HandleFunc("POST /v1/keys/{id}/reshare", s.keyOp(s.coord.InitReshare))
	s.mux.HandleFunc("POST /v1/keys/{id}/abort", s.keyOp(s.coord.AbortKeyGen))
	s.mux.HandleFunc("DELETE /v1/keys/{id}", s.keyOp(s.coord.DeleteKey))
	s.mux.HandleFunc("POST /v1/keys/{id}/round1/keygen", s.handleRound1(s.coord.AddRound1KeyGenContribution))
	s.mux.HandleFunc("POST /v1/keys/{id}/round1/reshare", s.handleRound1(s.coord.AddRound1ReshareContribution))
	s.mux.HandleFunc("POST /v1/keys/{id}/round2", s.handleRound2)
	s.mux.HandleFunc("POST /v1/keys/{id}/round3", s.keyOp(s.coord.AddRound3Contribution))

	s.mux.HandleFunc("GET /v1/keys/{id}", s.handleGetKey)
	s.mux.HandleFunc("GET /v1/keys/{id}/session", s.handleGetSession)
	s.mux.HandleFunc("GET /v1/keys/{id}/ephemeral-keys", s.handleEphemeralKeys)
	s.mux.HandleFunc("GET /v1/keys/{id}/ciphertexts", s.handleCiphertexts)

	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /v1/peers", s.handleGetPeers)
	s.mux.HandleFunc("PUT /v1/peers", s.handlePutPeers)
	s.mux.HandleFunc("POST /v1/admins", s.handleAddAdmin)
	s.mux.HandleFunc("GET /v1/admins/{address}", s.handleIsAdmin)
	s.mux.HandleFunc("DELETE /v1/admins/{address}", s.handleRevokeAdmin)
	s.mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("elapsed", time.Since(start)).
		Msg("request")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errUnauthenticated = errors.New("api: caller not authenticated")

// caller returns the authenticated caller address.
func (s *Server) caller(r *http.Request) (common.Address, error) {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		cn := r.TLS.PeerCertificates[0].Subject.CommonName
		if common.IsHexAddress(cn) {
			return common.HexToAddress(cn), nil
		}
	}
	if s.opts.TrustCallerHeader {
		if h := r.Header.Get(HeaderPeerAddress); common.IsHexAddress(h) {
			return common.HexToAddress(h), nil
		}
	}
	return common.Address{}, errUnauthenticated
}

func keyID(r *http.Request) (keygen.KeyID, error) {
	return keygen.ParseKeyID(r.PathValue("id"))
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal","message":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
}

// writeError maps err onto its kind and status.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnauthenticated) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: err.Error()})
		return
	}
	kind := registry.ErrorKind(err)
	writeJSON(w, statusFor(kind), errorResponse{Error: kind, Message: err.Error()})
}

func statusFor(kind string) int {
	switch kind {
	case "not_admin", "not_participant":
		return http.StatusForbidden
	case "unknown_key_id":
		return http.StatusNotFound
	case "deleted_key_id":
		return http.StatusGone
	case "wrong_round", "already_submitted", "key_already_registered",
		"sessions_in_flight", "last_admin", "no_roster":
		return http.StatusConflict
	case "bad_contribution", "not_producer", "not_on_curve", "not_in_subgroup",
		"identity_point", "proof_rejected", "roster_size", "duplicate_peer",
		"invalid_params", "unknown_admin", "unsupported_shape":
		return http.StatusUnprocessableEntity
	case "stopped", "canceled", "deadline_exceeded":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// keyOp serves an operation that takes only the caller and the key id.
func (s *Server) keyOp(op func(context.Context, common.Address, keygen.KeyID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.caller(r)
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := keyID(r)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := op(r.Context(), caller, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func (s *Server) handleRound1(op func(context.Context, common.Address, keygen.KeyID, *keygen.Round1Contribution) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.caller(r)
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := keyID(r)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		var c keygen.Round1Contribution
		if err := readJSON(r, &c); err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := op(r.Context(), caller, id, &c); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func (s *Server) handleRound2(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := keyID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var c keygen.Round2Contribution
	if err := readJSON(r, &c); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.coord.AddRound2Contribution(r.Context(), caller, id, &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	id, err := keyID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	key, err := s.coord.PublicKeyAndEpoch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := keyID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	st, err := s.coord.SessionStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleEphemeralKeys(w http.ResponseWriter, r *http.Request) {
	id, err := keyID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	keys, err := s.coord.EphemeralPublicKeys(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleCiphertexts(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := keyID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	cts, err := s.coord.Ciphertexts(r.Context(), caller, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cts)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid since %q", v))
			return
		}
		since = n
	}
	evs := s.coord.Events(since)
	if evs == nil {
		evs = []registry.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

type peersRequest struct {
	Peers []common.Address `json:"peers"`
}

func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.coord.Peers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if peers == nil {
		peers = []common.Address{}
	}
	writeJSON(w, http.StatusOK, peersRequest{Peers: peers})
}

func (s *Server) handlePutPeers(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req peersRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.coord.RegisterPeers(r.Context(), caller, req.Peers); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

type adminRequest struct {
	Address common.Address `json:"address"`
}

type adminResponse struct {
	Address common.Address `json:"address"`
	Admin   bool           `json:"admin"`
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req adminRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.coord.AddAdmin(r.Context(), caller, req.Address); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func pathAddress(r *http.Request) (common.Address, error) {
	v := r.PathValue("address")
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address %q", v)
	}
	return common.HexToAddress(v), nil
}

func (s *Server) handleIsAdmin(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ok, err := s.coord.IsAdmin(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{Address: addr, Admin: ok})
}

func (s *Server) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	addr, err := pathAddress(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.coord.RevokeAdmin(r.Context(), caller, addr); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
