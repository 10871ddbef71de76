// server.go - REST surface for the treasury ledger.
//
// All field elements travel as decimal strings; proofs as base64. Every
// mutating endpoint maps straight onto one ledger operation, so the ledger's
// atomicity guarantees carry over to the wire.
package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	"github.com/lyronctk/treasury-house/internal/treasury"
)

// PointJSON is the wire form of a curve point.
type PointJSON struct {
	X string `json:"x"`
	Y string `json:"y"`
}

func (p PointJSON) decode() (treasury.Point, error) {
	var x, y fr.Element
	if _, err := x.SetString(p.X); err != nil {
		return treasury.Point{}, err
	}
	if _, err := y.SetString(p.Y); err != nil {
		return treasury.Point{}, err
	}
	return treasury.NewPoint(x, y), nil
}

func encodePoint(p treasury.Point) PointJSON {
	return PointJSON{X: p.X.String(), Y: p.Y.String()}
}

// DepositRequest is the POST /deposit body.
type DepositRequest struct {
	P     PointJSON `json:"p"`
	Q     PointJSON `json:"q"`
	Value uint64    `json:"value"`
}

// WithdrawRequestJSON is the POST /withdraw body.
type WithdrawRequestJSON struct {
	Amount        uint64    `json:"amount"`
	ChangeP       PointJSON `json:"change_p"`
	ChangeQ       PointJSON `json:"change_q"`
	Proof         string    `json:"proof"`
	PublicSignals []string  `json:"public_signals"`
}

// RegisterRequest is the POST /register body.
type RegisterRequest struct {
	PublicKey PointJSON `json:"public_key"`
	Label     string    `json:"label"`
}

// Server exposes a Ledger over HTTP.
type Server struct {
	ledger *treasury.Ledger
	log    zerolog.Logger
}

// NewServer wires a ledger to the REST surface.
func NewServer(ledger *treasury.Ledger, log zerolog.Logger) *Server {
	return &Server{ledger: ledger, log: log}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /deposit", s.handleDeposit)
	mux.HandleFunc("POST /withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /root", s.handleRoot)
	mux.HandleFunc("GET /directory", s.handleDirectory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

// statusFor maps protocol errors onto HTTP statuses: client-recoverable
// rejections become 409/400, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, treasury.ErrZeroValueDeposit),
		errors.Is(err, treasury.ErrInsufficientValue),
		errors.Is(err, treasury.ErrInvalidProof),
		errors.Is(err, treasury.ErrIndexNotFilled):
		return http.StatusBadRequest
	case errors.Is(err, treasury.ErrStaleRoot),
		errors.Is(err, treasury.ErrAlreadySpent),
		errors.Is(err, treasury.ErrCapacityExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := req.P.decode()
	if err != nil {
		http.Error(w, "invalid point p", http.StatusBadRequest)
		return
	}
	q, err := req.Q.decode()
	if err != nil {
		http.Error(w, "invalid point q", http.StatusBadRequest)
		return
	}
	idx, err := s.ledger.Deposit(p, q, req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	root := s.ledger.Root()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"index": idx,
		"root":  root.String(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	changeP, err := req.ChangeP.decode()
	if err != nil {
		http.Error(w, "invalid change point p", http.StatusBadRequest)
		return
	}
	changeQ, err := req.ChangeQ.decode()
	if err != nil {
		http.Error(w, "invalid change point q", http.StatusBadRequest)
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		http.Error(w, "invalid proof encoding", http.StatusBadRequest)
		return
	}
	signals := make([]fr.Element, len(req.PublicSignals))
	for i, sig := range req.PublicSignals {
		if _, err := signals[i].SetString(sig); err != nil {
			http.Error(w, "invalid public signal", http.StatusBadRequest)
			return
		}
	}

	receipt, err := s.ledger.Withdraw(treasury.WithdrawRequest{
		Amount:        req.Amount,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		Proof:         proof,
		PublicSignals: signals,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"released":     receipt.Released,
		"spent":        receipt.SpentIndices,
		"change_index": receipt.ChangeIndex,
		"change_value": receipt.ChangeValue,
		"root":         receipt.NewRoot.String(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pub, err := req.PublicKey.decode()
	if err != nil {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}
	pos := s.ledger.Register(pub, req.Label)
	s.writeJSON(w, http.StatusOK, map[string]any{"position": pos})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	root := s.ledger.Root()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"root":          root.String(),
		"next_index":    s.ledger.NextIndex(),
		"directory_len": s.ledger.DirectoryLen(),
		"balance":       s.ledger.Balance(),
	})
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	records := s.ledger.Records()
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = map[string]any{
			"public_key": encodePoint(rec.PublicKey),
			"label":      rec.Label,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
