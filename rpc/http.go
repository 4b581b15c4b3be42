package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"liquidstake/core"
	"liquidstake/eventlog"
	"liquidstake/native/bank"
	"liquidstake/native/liquidstake"
	"liquidstake/observability"
	"liquidstake/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRejected       = -32010
	// codePoolBase offsets pool rejections: code = codePoolBase - Error.Code.
	codePoolBase = -33000
)

// Pool is the node surface the server drives.
type Pool interface {
	AddStake(caller [20]byte, amount *uint256.Int) error
	RedeemStake(caller [20]byte, amount *uint256.Int) error
	WithdrawStake(caller [20]byte, era uint64) error
	Nominate(caller [20]byte, slate []liquidstake.Nomination) error
	PoolInfo() (*liquidstake.PoolInfo, error)
	Redemptions(account [20]byte) ([]liquidstake.RedemptionBucket, error)
	NominationLock(account [20]byte) (*uint256.Int, error)
	NominationTally() ([]liquidstake.TallyEntry, error)
	Balance(account [20]byte) (*core.Balance, error)
	Height() uint64
}

// EventLog serves archived events. It may be nil, in which case
// lstake_events reports the archive as unavailable.
type EventLog interface {
	Recent(ctx context.Context, eventType string, limit int) ([]eventlog.Record, error)
	SinceHeight(ctx context.Context, height uint64, limit int) ([]eventlog.Record, error)
}

// ServerConfig carries the auth, rate limit and tracing settings of the
// JSON-RPC listener.
type ServerConfig struct {
	JWTSecret       string
	JWTIssuer       string
	RateLimitPerSec float64
	RateLimitBurst  int
	ServiceName     string
}

type handlerFunc func(r *http.Request, req *RPCRequest) (interface{}, *RPCError)

// Server serves JSON-RPC on /rpc and the optional event stream on
// /ws/events.
type Server struct {
	pool    Pool
	events  EventLog
	feed    *EventFeed
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	methods map[string]handlerFunc
}

// NewServer builds a server over pool. events may be nil.
func NewServer(pool Pool, events EventLog, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lstaked"
	}
	logger = logger.With(slog.String("component", "rpc"))
	s := &Server{
		pool:    pool,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		auth:    middleware.NewAuthenticator(middleware.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger),
		limiter: middleware.NewRateLimiter(middleware.RateLimit{RatePerSecond: cfg.RateLimitPerSec, Burst: cfg.RateLimitBurst}, logger),
	}
	s.methods = map[string]handlerFunc{
		"lstake_addStake":       s.authenticated(s.handleAddStake),
		"lstake_redeemStake":    s.authenticated(s.handleRedeemStake),
		"lstake_withdrawStake":  s.authenticated(s.handleWithdrawStake),
		"lstake_nominate":       s.authenticated(s.handleNominate),
		"lstake_poolInfo":       s.handlePoolInfo,
		"lstake_redemptions":    s.handleRedemptions,
		"lstake_nominationLock": s.handleNominationLock,
		"lstake_tally":          s.handleTally,
		"lstake_balance":        s.handleBalance,
		"lstake_events":         s.handleEvents,
	}
	return s
}

// SetEventFeed enables /ws/events. The feed must also be registered as a
// node event sink.
func (s *Server) SetEventFeed(feed *EventFeed) { s.feed = feed }

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Get("/healthz", s.handleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.With(s.limiter.Middleware, s.auth.Middleware).Post("/rpc", s.handle)
	if s.feed != nil {
		router.With(s.limiter.Middleware).Get("/ws/events", s.handleEventsWS)
	}
	return otelhttp.NewHandler(router, s.cfg.ServiceName)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "height": s.pool.Height()})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "failed to encode result", err.Error())
		return
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: raw}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle decodes one JSON-RPC request and routes it to its method.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	handler, ok := s.methods[req.Method]
	if !ok {
		observability.RPC().Observe(req.Method, codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	result, rpcErr := handler(r, req)
	if rpcErr != nil {
		observability.RPC().Observe(req.Method, rpcErr.Code, time.Since(start))
		if rpcErr.status >= http.StatusInternalServerError {
			s.logger.Error("rpc call failed", slog.String("method", req.Method), slog.Any("error", rpcErr.Data))
		}
		writeError(w, rpcErr.status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.RPC().Observe(req.Method, 0, time.Since(start))
	writeResult(w, req.ID, result)
}

type callerHandler func(r *http.Request, req *RPCRequest, caller [20]byte) (interface{}, *RPCError)

// authenticated requires a verified caller before running next.
func (s *Server) authenticated(next callerHandler) handlerFunc {
	return func(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
		caller, ok := middleware.CallerFromContext(r.Context())
		if !ok {
			observability.RPC().RecordThrottle("unauthenticated")
			return nil, &RPCError{Code: codeUnauthorized, Message: "bearer token required", status: http.StatusUnauthorized}
		}
		return next(r, req, caller)
	}
}

func invalidParams(message string, data interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message, Data: data, status: http.StatusBadRequest}
}

// decodeParams unmarshals the single parameter object. Methods whose
// parameters are all optional accept an empty list.
func decodeParams(req *RPCRequest, out interface{}, optional bool) *RPCError {
	if len(req.Params) == 0 && optional {
		return nil
	}
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

// operationError maps a failure from the node onto a JSON-RPC error.
func operationError(err error) *RPCError {
	if code, ok := liquidstake.CodeOf(err); ok {
		return &RPCError{
			Code:    codePoolBase - int(code),
			Message: err.Error(),
			Data:    map[string]uint16{"poolCode": code},
			status:  http.StatusBadRequest,
		}
	}
	switch {
	case errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrKeepAlive),
		errors.Is(err, bank.ErrExistentialDeposit):
		return &RPCError{Code: codeRejected, Message: err.Error(), status: http.StatusBadRequest}
	}
	return &RPCError{Code: codeServerError, Message: "internal error", Data: err.Error(), status: http.StatusInternalServerError}
}
