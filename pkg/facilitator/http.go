package facilitator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const maxRequestBody = 1 << 20

// response is the JSON envelope every endpoint answers with.
type response struct {
	Success      bool        `json:"success"`
	TxHash       string      `json:"txHash,omitempty"`
	BlockNumber  uint64      `json:"blockNumber,omitempty"`
	GasUsed      uint64      `json:"gasUsed,omitempty"`
	ActionResult any         `json:"actionResult,omitempty"`
	Error        string      `json:"error,omitempty"`
	Code         Code        `json:"code,omitempty"`
}

// Handler mounts the relay's HTTP API:
//
//	POST /v1/execute
//	GET  /v1/recovery-status?wallet=0x…
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/execute", s.handleExecute)
	mux.HandleFunc("GET /v1/recovery-status", s.handleRecoveryStatus)
	return s.withRequestLog(mux)
}

func (s *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, wrapError(CodeValidation, err))
		return
	}

	result, ferr := s.Execute(r.Context(), requestOrigin(r), &req)
	if ferr != nil {
		writeFailure(w, ferr)
		return
	}
	writeJSON(w, http.StatusOK, response{
		Success:      true,
		TxHash:       result.TxHash.Hex(),
		BlockNumber:  result.BlockNumber,
		GasUsed:      result.GasUsed,
		ActionResult: result.ActionResult,
	})
}

func (s *Service) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("wallet")
	if !common.IsHexAddress(raw) {
		writeFailure(w, newError(CodeValidation, "wallet query parameter must be a hex address"))
		return
	}

	st, ferr := s.RecoveryStatus(r.Context(), common.HexToAddress(raw))
	if ferr != nil {
		writeFailure(w, ferr)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"origin", requestOrigin(r),
			"duration", time.Since(start),
		)
	})
}

// requestOrigin keys rate limiting by the caller's Origin header,
// falling back to the peer address for non-browser callers.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeFailure(w http.ResponseWriter, ferr *Error) {
	writeJSON(w, httpStatus(ferr.Code), response{
		Success: false,
		Error:   ferr.Message,
		Code:    ferr.Code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Debug("write response", "error", err)
	}
}

func httpStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeAuthentication, CodeInvalidSignature, CodeExpiredSignature, CodeWrongPassword:
		return http.StatusUnauthorized
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		// Chain-level failures are well-formed requests that could not
		// take effect.
		return http.StatusUnprocessableEntity
	}
}
