package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"AgentBind-Chain/internal/association"
	"AgentBind-Chain/internal/auth"
	xerrors "AgentBind-Chain/internal/errors"
	"AgentBind-Chain/internal/indexer"
	"AgentBind-Chain/internal/observability/metrics"
	"AgentBind-Chain/pkg/logger"
)

// Server exposes the association service over REST: public reads of the
// agent and prompt fields, signed writes routed through the authorization
// gate, and the operational endpoints.
type Server struct {
	addr     string
	gate     *association.Gate
	verifier *auth.Verifier
	indexer  *indexer.Indexer
	audit    *slog.Logger
}

// NewServer constructs the API server. The indexer may be nil, in which
// case the stats endpoint reports empty counters.
func NewServer(addr string, gate *association.Gate, verifier *auth.Verifier, idx *indexer.Indexer) *Server {
	return &Server{
		addr:     addr,
		gate:     gate,
		verifier: verifier,
		indexer:  idx,
		audit:    logger.Audit(),
	}
}

// Start runs the HTTP server until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler returns the routed handler without starting a listener. Tests
// mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tokens/{id}/agent", s.instrument("token_agent", s.handleGetAgent))
	mux.HandleFunc("GET /api/v1/tokens/{id}/prompt", s.instrument("token_prompt", s.handleGetPrompt))
	mux.HandleFunc("PUT /api/v1/tokens/{id}/agent", s.instrument("token_agent", s.handleUpdateAgent))
	mux.HandleFunc("PUT /api/v1/tokens/{id}/prompt", s.instrument("token_prompt", s.handleUpdatePrompt))
	mux.HandleFunc("GET /api/v1/stats", s.instrument("stats", s.handleStats))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) instrument(handler string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.ObserveHTTPRequest(handler, r.Method, sw.status, time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type agentResponse struct {
	TokenID string `json:"token_id"`
	Agent   string `json:"agent"`
}

type promptResponse struct {
	TokenID string `json:"token_id"`
	Prompt  string `json:"prompt"`
}

type updateAgentRequest struct {
	Agent     string `json:"agent"`
	IssuedAt  int64  `json:"issued_at"`
	Signature string `json:"signature"`
}

type updatePromptRequest struct {
	Prompt    string `json:"prompt"`
	IssuedAt  int64  `json:"issued_at"`
	Signature string `json:"signature"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	agent, err := s.gate.Agent(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{TokenID: tokenID.String(), Agent: agent.Hex()})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	prompt, err := s.gate.Prompt(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{TokenID: tokenID.String(), Prompt: prompt})
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	if !common.IsHexAddress(req.Agent) {
		writeError(w, association.ErrInvalidAgent)
		return
	}
	caller, ok := s.recoverCaller(w, "update_agent", tokenID, req.Agent, req.IssuedAt, req.Signature)
	if !ok {
		return
	}

	err := s.gate.UpdateAgent(r.Context(), tokenID, caller, common.HexToAddress(req.Agent))
	s.auditMutation(r, "update_agent", tokenID, caller, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{TokenID: tokenID.String(), Agent: common.HexToAddress(req.Agent).Hex()})
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req updatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	caller, ok := s.recoverCaller(w, "update_prompt", tokenID, req.Prompt, req.IssuedAt, req.Signature)
	if !ok {
		return
	}

	err := s.gate.UpdatePrompt(r.Context(), tokenID, caller, req.Prompt)
	s.auditMutation(r, "update_prompt", tokenID, caller, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{TokenID: tokenID.String(), Prompt: req.Prompt})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.indexer == nil {
		writeJSON(w, http.StatusOK, indexer.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, s.indexer.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recoverCaller verifies the signed envelope and returns the signing
// address. On failure it writes the error response itself.
func (s *Server) recoverCaller(w http.ResponseWriter, method string, tokenID *big.Int, value string, issuedAt int64, signature string) (common.Address, bool) {
	if s.verifier == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "signature verifier not configured"))
		return common.Address{}, false
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeSignatureInvalid, err, "signature is not valid hex"))
		return common.Address{}, false
	}
	caller, err := s.verifier.Recover(auth.Envelope{
		Method:    method,
		TokenID:   tokenID,
		Value:     value,
		IssuedAt:  issuedAt,
		Signature: sig,
	})
	if err != nil {
		writeError(w, err)
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) auditMutation(r *http.Request, operation string, tokenID *big.Int, caller common.Address, err error) {
	outcome := "granted"
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
	}
	audit := s.audit
	if audit == nil {
		audit = logger.Audit()
	}
	audit.Info("mutation",
		slog.String("operation", operation),
		slog.String("token_id", tokenID.String()),
		slog.String("caller", caller.Hex()),
		slog.String("outcome", outcome),
		slog.String("path", r.URL.Path),
	)
}

// parseTokenID reads the {id} path segment as a decimal or 0x-hex token
// identifier. On failure it writes the error response itself.
func parseTokenID(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	if raw == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "token id is required"))
		return nil, false
	}
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw = raw[2:]
		base = 16
	}
	tokenID, ok := new(big.Int).SetString(raw, base)
	if !ok || tokenID.Sign() < 0 {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "token id is not a valid integer"))
		return nil, false
	}
	return tokenID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeTokenNotFound:
		status = http.StatusNotFound
	case xerrors.CodeUnauthorized:
		status = http.StatusForbidden
	case xerrors.CodeInvalidAgent, xerrors.CodePromptPolicy, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case xerrors.CodeSignatureInvalid:
		status = http.StatusUnauthorized
	case xerrors.CodeRegistryFailure, xerrors.CodeStorageFailure:
		status = http.StatusBadGateway
	}

	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeJSON(w, status, errorResponse{Code: string(xerrors.CodeOf(err)), Message: message})
}
