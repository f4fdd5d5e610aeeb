package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ecomledger/core"
	"ecomledger/crypto"
	"ecomledger/observability"
	"ecomledger/observability/logging"
	"ecomledger/rpc/middleware"
	"ecomledger/rpc/modules"
	"ecomledger/storage/audit"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	defaultTimestampSkew   = 5 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
)

// Config tunes the HTTP surface. Zero values select defaults.
type Config struct {
	MaxBodyBytes  int64
	TimestampSkew time.Duration
	RateLimit     middleware.RateLimit
	Auth          middleware.AuthConfig
}

type methodFunc func(ctx context.Context, signer crypto.Handle, params json.RawMessage) (interface{}, *modules.ModuleError)

type method struct {
	signed   bool
	noParams bool
	call     methodFunc
}

type Server struct {
	node     *core.Node
	commerce *modules.CommerceModule
	cfg      Config
	logger   *slog.Logger
	audit    *audit.Log
	replay   *replayGuard
	now      func() time.Time
	methods  map[string]method
}

func NewServer(node *core.Node, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	if cfg.TimestampSkew <= 0 {
		cfg.TimestampSkew = defaultTimestampSkew
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:     node,
		commerce: modules.NewCommerceModule(node),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		replay:   newReplayGuard(cfg.TimestampSkew, 0),
		now:      time.Now,
	}
	s.methods = s.buildMethods()
	return s
}

// SetAuditLog enables persistence of one audit entry per dispatched call.
func (s *Server) SetAuditLog(log *audit.Log) { s.audit = log }

// SetClock overrides the clock used for envelope timestamp checks.
func (s *Server) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func signed[T any](fn func(context.Context, crypto.Handle, json.RawMessage) (T, *modules.ModuleError)) method {
	return method{signed: true, call: func(ctx context.Context, signer crypto.Handle, params json.RawMessage) (interface{}, *modules.ModuleError) {
		return fn(ctx, signer, params)
	}}
}

func query[T any](fn func(json.RawMessage) (T, *modules.ModuleError)) method {
	return method{call: func(_ context.Context, _ crypto.Handle, params json.RawMessage) (interface{}, *modules.ModuleError) {
		return fn(params)
	}}
}

func (s *Server) buildMethods() map[string]method {
	c := s.commerce
	return map[string]method{
		"commerce_createProduct":  signed(c.CreateProduct),
		"commerce_addToCart":      signed(c.AddToCart),
		"commerce_createPayment":  signed(c.CreatePayment),
		"commerce_createEscrow":   signed(c.CreateEscrow),
		"commerce_depositEscrow":  signed(c.DepositEscrow),
		"commerce_withdrawEscrow": signed(c.WithdrawEscrow),
		"commerce_createOrder":    signed(c.CreateOrder),
		"commerce_getProduct":     query(c.GetProduct),
		"commerce_listProducts":   query(c.ListProducts),
		"commerce_getCart":        query(c.GetCart),
		"commerce_getCartList":    query(c.GetCartList),
		"commerce_getPayment":     query(c.GetPayment),
		"commerce_getEscrow":      query(c.GetEscrow),
		"commerce_getOrder":       query(c.GetOrder),
		"custody_balance":         query(c.Balance),
		"ledger_head":             {noParams: true, call: query(c.Head).call},
		"audit_recent":            {noParams: true, call: s.auditRecent},
	}
}

// Handler returns the instrumented HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	limiter := middleware.NewRateLimiter(s.cfg.RateLimit, s.logger)
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)
	r.Group(func(api chi.Router) {
		api.Use(limiter.Middleware)
		if auth.Enabled() {
			api.Use(auth.Middleware)
		}
		api.Post("/", s.handle)
		api.Post("/rpc", s.handle)
	})
	return otelhttp.NewHandler(r, "ecomledger-rpc")
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
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
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	start := time.Now()
	var signer crypto.Handle
	result, modErr := s.dispatch(r.Context(), req, m, &signer)
	elapsed := time.Since(start)

	code := 0
	status := http.StatusOK
	if modErr != nil {
		code = modErr.Code
		status = modErr.HTTPStatus
	}
	observability.RPC().ObserveCall(req.Method, code, elapsed)
	s.record(r, req.Method, signer, code, modErr, elapsed)

	if modErr != nil {
		writeError(w, status, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req *RPCRequest, m method, signer *crypto.Handle) (interface{}, *modules.ModuleError) {
	var params json.RawMessage
	if len(req.Params) > 0 {
		params = req.Params[0]
	}
	if len(params) == 0 && !m.noParams {
		return nil, &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "parameter object required"}
	}
	if m.signed {
		if len(req.Params) < 2 {
			return nil, &modules.ModuleError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: errEnvelopeMissing.Error()}
		}
		var env Envelope
		if err := json.Unmarshal(req.Params[1], &env); err != nil {
			return nil, &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid envelope", Data: err.Error()}
		}
		now := s.now()
		recovered, err := verifyEnvelope(req.Method, params, &env, now, s.cfg.TimestampSkew)
		if err != nil {
			return nil, &modules.ModuleError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: err.Error()}
		}
		digest, err := EnvelopeDigest(req.Method, params, env.Timestamp)
		if err != nil {
			return nil, &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
		}
		if err := s.replay.claim(recovered.String()+"|"+hex.EncodeToString(digest), now); err != nil {
			return nil, &modules.ModuleError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: err.Error()}
		}
		*signer = recovered
	}
	// Once dispatched, an operation runs to completion or conflict.
	if err := ctx.Err(); err != nil {
		return nil, &modules.ModuleError{HTTPStatus: http.StatusRequestTimeout, Code: codeInvalidRequest, Message: "request cancelled", Data: err.Error()}
	}
	return m.call(ctx, *signer, params)
}

func (s *Server) record(r *http.Request, method string, signer crypto.Handle, code int, modErr *modules.ModuleError, elapsed time.Duration) {
	requestID := middleware.RequestIDFromContext(r.Context())
	resultText := "ok"
	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.Int("code", code),
		slog.Duration("elapsed", elapsed),
	}
	if !signer.IsZero() {
		attrs = append(attrs, logging.Abbrev("signer", signer.String()))
	}
	if modErr != nil {
		resultText = modErr.Message
		attrs = append(attrs, slog.String("result", resultText))
		s.logger.Info("rpc call rejected", attrs...)
	} else {
		s.logger.Debug("rpc call", attrs...)
	}
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		RequestID:     requestID,
		Method:        method,
		Subject:       middleware.SubjectFromContext(r.Context()),
		Code:          code,
		Result:        resultText,
		ElapsedMicros: elapsed.Microseconds(),
	}
	if !signer.IsZero() {
		entry.Signer = signer.String()
	}
	// The request context may already be cancelled; the audit row is still wanted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", slog.String("request_id", requestID), slog.Any("error", err))
	}
}
