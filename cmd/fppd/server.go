// server.go - REST API for the floating-point protocol daemon
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"fpp/internal/protocol"
)

// Server exposes the protocol engine over HTTP.
type Server struct {
	engine  *protocol.Engine
	metrics *Metrics
	health  *HealthChecker
	log     zerolog.Logger
}

// NewServer wires the engine into an HTTP handler set.
func NewServer(engine *protocol.Engine, metrics *Metrics, health *HealthChecker, log zerolog.Logger) *Server {
	return &Server{engine: engine, metrics: metrics, health: health, log: log}
}

// Routes builds the daemon's HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/protocol", s.handleProtocol)
	mux.HandleFunc("GET /v1/points/{id}", s.handlePoint)
	mux.HandleFunc("GET /v1/nullifiers/{id}", s.handleNullifier)
	mux.HandleFunc("GET /v1/withdrawals/{id}", s.handleWithdrawal)
	mux.HandleFunc("POST /v1/deposits", s.handleDeposit)
	mux.HandleFunc("POST /v1/payments", s.handlePayment)
	mux.HandleFunc("POST /v1/withdrawals", s.handleRequestWithdrawal)
	mux.HandleFunc("POST /v1/withdrawals/{id}/complete", s.handleCompleteWithdrawal)
	mux.HandleFunc("POST /v1/withdrawals/{id}/cancel", s.handleCancelWithdrawal)
	mux.HandleFunc("POST /v1/admin/fees", s.handleUpdateFees)
	mux.HandleFunc("POST /v1/admin/pause", s.handleSetPaused)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// writeError maps protocol errors onto HTTP statuses and reports the stable
// numeric code alongside the message.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, protocol.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, protocol.ErrAccountNotInitialized),
		errors.Is(err, protocol.ErrInvalidAccount):
		status = http.StatusNotFound
	case errors.Is(err, protocol.ErrAccountAlreadyInitialized),
		errors.Is(err, protocol.ErrNullifierAlreadyUsed),
		errors.Is(err, protocol.ErrWithdrawalNotReady),
		errors.Is(err, protocol.ErrPointLocked),
		errors.Is(err, protocol.ErrPointNotActive),
		errors.Is(err, protocol.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, protocol.ErrRateLimitExceeded),
		errors.Is(err, protocol.ErrFlashLoanDetected):
		status = http.StatusTooManyRequests
	}
	s.metrics.Errors.WithLabelValues(op).Inc()
	s.log.Warn().Str("op", op).Err(err).Int("status", status).Msg("request rejected")
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: protocol.ErrCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// observe records handler latency under the op label.
func (s *Server) observe(op string, start time.Time) {
	s.metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func parseHashes(in []string) ([]protocol.Hash, error) {
	out := make([]protocol.Hash, 0, len(in))
	for _, s := range in {
		h, err := parseHash(s)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func hashStrings(in []protocol.Hash) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		out = append(out, h.String())
	}
	return out
}

type protocolResponse struct {
	Authority        string `json:"authority"`
	Treasury         string `json:"treasury"`
	AssetID          string `json:"asset_id"`
	TotalDeposited   uint64 `json:"total_deposited"`
	TotalWithdrawn   uint64 `json:"total_withdrawn"`
	TotalFees        uint64 `json:"total_fees"`
	TotalPoints      uint64 `json:"total_points"`
	DepositFeeBps    uint16 `json:"deposit_fee_bps"`
	WithdrawalFeeBps uint16 `json:"withdrawal_fee_bps"`
	Paused           bool   `json:"paused"`
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	defer s.observe("protocol", time.Now())
	ps, err := s.engine.Protocol()
	if err != nil {
		s.writeError(w, "protocol", err)
		return
	}
	s.metrics.TotalPoints.Set(float64(ps.TotalPoints))
	s.metrics.TotalDeposited.Set(float64(ps.TotalDeposited))
	writeJSON(w, http.StatusOK, protocolResponse{
		Authority:        ps.Authority.String(),
		Treasury:         ps.Treasury.String(),
		AssetID:          ps.AssetID.String(),
		TotalDeposited:   ps.TotalDeposited,
		TotalWithdrawn:   ps.TotalWithdrawn,
		TotalFees:        ps.TotalFees,
		TotalPoints:      ps.TotalPoints,
		DepositFeeBps:    ps.DepositFeeRate,
		WithdrawalFeeBps: ps.WithdrawalFeeRate,
		Paused:           ps.Paused,
	})
}

type pointResponse struct {
	Commitment  string `json:"commitment"`
	CreatedAt   int64  `json:"created_at"`
	Mass        uint64 `json:"mass"`
	Active      bool   `json:"active"`
	Creator     string `json:"creator"`
	LockedUntil int64  `json:"locked_until"`
}

func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	defer s.observe("point", time.Now())
	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		s.writeError(w, "point", err)
		return
	}
	point, ok, err := s.engine.Point(id)
	if err != nil {
		s.writeError(w, "point", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown point", Code: protocol.ErrCode(protocol.ErrInvalidAccount)})
		return
	}
	writeJSON(w, http.StatusOK, pointResponse{
		Commitment:  point.Commitment.String(),
		CreatedAt:   point.CreatedAt,
		Mass:        point.Mass,
		Active:      point.Active,
		Creator:     point.Creator.String(),
		LockedUntil: point.LockedUntil,
	})
}

func (s *Server) handleNullifier(w http.ResponseWriter, r *http.Request) {
	defer s.observe("nullifier", time.Now())
	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		s.writeError(w, "nullifier", err)
		return
	}
	used, err := s.engine.NullifierUsed(id)
	if err != nil {
		s.writeError(w, "nullifier", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"used": used})
}

type withdrawalResponse struct {
	Request     string   `json:"request"`
	Requester   string   `json:"requester"`
	Amount      uint64   `json:"amount"`
	RequestTime int64    `json:"request_time"`
	UnlockTime  int64    `json:"unlock_time"`
	Completed   bool     `json:"completed"`
	Cancelled   bool     `json:"cancelled"`
	Points      []string `json:"points"`
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	defer s.observe("withdrawal", time.Now())
	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		s.writeError(w, "withdrawal", err)
		return
	}
	req, ok, err := s.engine.Withdrawal(id)
	if err != nil {
		s.writeError(w, "withdrawal", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown withdrawal", Code: protocol.ErrCode(protocol.ErrAccountNotInitialized)})
		return
	}
	writeJSON(w, http.StatusOK, withdrawalResponse{
		Request:     id.String(),
		Requester:   req.Requester.String(),
		Amount:      req.Amount,
		RequestTime: req.RequestTime,
		UnlockTime:  req.UnlockTime,
		Completed:   req.Completed,
		Cancelled:   req.Cancelled,
		Points:      hashStrings(req.Points),
	})
}

type depositRequest struct {
	Depositor   string   `json:"depositor"`
	Amount      uint64   `json:"amount"`
	Commitments []string `json:"commitments"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	defer s.observe("deposit", time.Now())
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	depositor, err := parseAddress(req.Depositor)
	if err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	commitments, err := parseHashes(req.Commitments)
	if err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	if err := s.engine.Deposit(depositor, req.Amount, commitments); err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	s.metrics.Deposits.Inc()
	writeJSON(w, http.StatusOK, map[string]int{"points": len(commitments)})
}

type paymentRequest struct {
	Sender            string   `json:"sender"`
	InputPoints       []string `json:"input_points"`
	InputNullifiers   []string `json:"input_nullifiers"`
	OutputCommitments []string `json:"output_commitments"`
	Proof             string   `json:"proof"`
	RingSignature     string   `json:"ring_signature"`
	Ring              []string `json:"ring"`
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	defer s.observe("payment", time.Now())
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "payment", err)
		return
	}
	payment, err := req.toPayment()
	if err != nil {
		s.writeError(w, "payment", err)
		return
	}
	if err := s.engine.PrivacyPayment(payment); err != nil {
		s.writeError(w, "payment", err)
		return
	}
	s.metrics.Payments.Inc()
	writeJSON(w, http.StatusOK, map[string]int{"outputs": len(payment.OutputCommitments)})
}

func (req *paymentRequest) toPayment() (protocol.PrivacyPayment, error) {
	var p protocol.PrivacyPayment
	sender, err := parseAddress(req.Sender)
	if err != nil {
		return p, err
	}
	inputs, err := parseHashes(req.InputPoints)
	if err != nil {
		return p, err
	}
	nullifiers, err := parseHashes(req.InputNullifiers)
	if err != nil {
		return p, err
	}
	outputs, err := parseHashes(req.OutputCommitments)
	if err != nil {
		return p, err
	}
	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		return p, err
	}
	sig, err := hex.DecodeString(req.RingSignature)
	if err != nil {
		return p, err
	}
	ringKeys := make([][]byte, 0, len(req.Ring))
	for _, member := range req.Ring {
		b, err := hex.DecodeString(member)
		if err != nil {
			return p, err
		}
		ringKeys = append(ringKeys, b)
	}
	return protocol.PrivacyPayment{
		Sender:            sender,
		InputPoints:       inputs,
		InputNullifiers:   nullifiers,
		OutputCommitments: outputs,
		Proof:             proof,
		RingSignature:     sig,
		Ring:              ringKeys,
	}, nil
}

type requestWithdrawalRequest struct {
	Requester  string   `json:"requester"`
	Nonce      uint64   `json:"nonce"`
	Points     []string `json:"points"`
	Nullifiers []string `json:"nullifiers"`
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	defer s.observe("request_withdrawal", time.Now())
	var req requestWithdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "request_withdrawal", err)
		return
	}
	requester, err := parseAddress(req.Requester)
	if err != nil {
		s.writeError(w, "request_withdrawal", err)
		return
	}
	points, err := parseHashes(req.Points)
	if err != nil {
		s.writeError(w, "request_withdrawal", err)
		return
	}
	nullifiers, err := parseHashes(req.Nullifiers)
	if err != nil {
		s.writeError(w, "request_withdrawal", err)
		return
	}
	key, err := s.engine.RequestWithdrawal(requester, req.Nonce, points, nullifiers)
	if err != nil {
		s.writeError(w, "request_withdrawal", err)
		return
	}
	s.metrics.WithdrawalRequests.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"request": key.String()})
}

type settleWithdrawalRequest struct {
	Requester string `json:"requester"`
	Permanent bool   `json:"permanent,omitempty"`
}

func (s *Server) handleCompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	defer s.observe("complete_withdrawal", time.Now())
	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		s.writeError(w, "complete_withdrawal", err)
		return
	}
	var req settleWithdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "complete_withdrawal", err)
		return
	}
	requester, err := parseAddress(req.Requester)
	if err != nil {
		s.writeError(w, "complete_withdrawal", err)
		return
	}
	if err := s.engine.CompleteWithdrawal(requester, id); err != nil {
		s.writeError(w, "complete_withdrawal", err)
		return
	}
	s.metrics.WithdrawalsCompleted.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	defer s.observe("cancel_withdrawal", time.Now())
	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		s.writeError(w, "cancel_withdrawal", err)
		return
	}
	var req settleWithdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "cancel_withdrawal", err)
		return
	}
	requester, err := parseAddress(req.Requester)
	if err != nil {
		s.writeError(w, "cancel_withdrawal", err)
		return
	}
	if err := s.engine.CancelWithdrawal(requester, id, req.Permanent); err != nil {
		s.writeError(w, "cancel_withdrawal", err)
		return
	}
	s.metrics.WithdrawalsCancelled.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type updateFeesRequest struct {
	Signer           string `json:"signer"`
	DepositFeeBps    uint16 `json:"deposit_fee_bps"`
	WithdrawalFeeBps uint16 `json:"withdrawal_fee_bps"`
}

func (s *Server) handleUpdateFees(w http.ResponseWriter, r *http.Request) {
	defer s.observe("update_fees", time.Now())
	var req updateFeesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "update_fees", err)
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, "update_fees", err)
		return
	}
	if err := s.engine.UpdateFees(signer, req.DepositFeeBps, req.WithdrawalFeeBps); err != nil {
		s.writeError(w, "update_fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type setPausedRequest struct {
	Signer string `json:"signer"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	defer s.observe("set_paused", time.Now())
	var req setPausedRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "set_paused", err)
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, "set_paused", err)
		return
	}
	if err := s.engine.SetPaused(signer, req.Paused); err != nil {
		s.writeError(w, "set_paused", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
