package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ecomledger/crypto"
	"ecomledger/rpc/modules"
)

const codeServerError = -32000

type auditRecentParams struct {
	Method string `json:"method"`
	Limit  int    `json:"limit"`
}

// AuditEntryResult is one persisted call as reported by audit_recent.
type AuditEntryResult struct {
	RequestID     string    `json:"requestId"`
	Method        string    `json:"method"`
	Signer        string    `json:"signer,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Code          int       `json:"code"`
	Result        string    `json:"result"`
	ElapsedMicros int64     `json:"elapsedMicros"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Server) auditRecent(ctx context.Context, _ crypto.Handle, raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s.audit == nil {
		return nil, &modules.ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeServerError, Message: "audit log disabled"}
	}
	var params auditRecentParams
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			return nil, &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
		}
	}
	entries, err := s.audit.Recent(ctx, params.Method, params.Limit)
	if err != nil {
		return nil, &modules.ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "audit query failed", Data: err.Error()}
	}
	out := make([]AuditEntryResult, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResult{
			RequestID:     e.RequestID,
			Method:        e.Method,
			Signer:        e.Signer,
			Subject:       e.Subject,
			Code:          e.Code,
			Result:        e.Result,
			ElapsedMicros: e.ElapsedMicros,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out, nil
}
