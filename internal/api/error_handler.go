package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"coinrush/internal/arena"
	"coinrush/internal/game"
	"coinrush/internal/store"
	"coinrush/internal/wallet"
)

// ErrorCode represents different error types
type ErrorCode string

const (
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeValidationError    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodePaymentFailed      ErrorCode = "PAYMENT_FAILED"
	ErrCodeWalletRequired     ErrorCode = "WALLET_NOT_CONNECTED"
	ErrCodeWrongWallet        ErrorCode = "WRONG_WALLET"
	ErrCodeDailyLimit         ErrorCode = "DAILY_LIMIT"
	ErrCodeSessionNotEnded    ErrorCode = "SESSION_NOT_ENDED"
	ErrCodeArenaFull          ErrorCode = "ARENA_FULL"
)

// APIError represents a structured API error
type APIError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrorResponse represents the complete error response
type ErrorResponse struct {
	Error   *APIError `json:"error"`
	Success bool      `json:"success"`
}

type ErrorHandler struct {
	logger *log.Logger
}

func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ErrorHandler{logger: logger}
}

// Abort classifies err, logs it when it is the server's fault and writes
// the error body. details are merged into the response.
func (eh *ErrorHandler) Abort(c *gin.Context, err error, details map[string]any) {
	apiErr, status := eh.classifyError(err)
	apiErr.RequestID = c.GetString(requestIDKey)
	if len(details) > 0 {
		if apiErr.Details == nil {
			apiErr.Details = make(map[string]any, len(details))
		}
		for k, v := range details {
			apiErr.Details[k] = v
		}
	}
	eh.logError(c, apiErr, status, err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: apiErr, Success: false})
}

// classifyError determines the error type and HTTP status code
func (eh *ErrorHandler) classifyError(err error) (*APIError, int) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		cp := *apiErr
		if cp.Timestamp.IsZero() {
			cp.Timestamp = time.Now()
		}
		return &cp, statusCodeFor(cp.Code)
	}

	code, msg := ErrCodeInternalError, "Internal server error"
	switch {
	case errors.Is(err, wallet.ErrWalletNotConnected):
		code, msg = ErrCodeWalletRequired, "Connect a wallet first"
	case errors.Is(err, wallet.ErrWrongWallet):
		code, msg = ErrCodeWrongWallet, err.Error()
	case errors.Is(err, wallet.ErrInvalidAddress):
		code, msg = ErrCodeValidationError, "Invalid wallet address"
	case errors.Is(err, wallet.ErrInsufficientBalance):
		code, msg = ErrCodeInsufficientFunds, err.Error()
	case errors.Is(err, wallet.ErrTransactionFailed):
		code, msg = ErrCodePaymentFailed, "Transaction failed due to network congestion"
	case errors.Is(err, wallet.ErrDailyClaimed):
		code, msg = ErrCodeDailyLimit, err.Error()
	case errors.Is(err, wallet.ErrInvalidAmount):
		code, msg = ErrCodeValidationError, err.Error()
	case errors.Is(err, arena.ErrUnknownMode):
		code, msg = ErrCodeValidationError, "Unknown game mode"
	case errors.Is(err, arena.ErrArenaFull):
		code, msg = ErrCodeArenaFull, "Too many live sessions, try again shortly"
	case errors.Is(err, arena.ErrShutdown):
		code, msg = ErrCodeServiceUnavailable, "Server is shutting down"
	case errors.Is(err, arena.ErrTournamentNotFound):
		code, msg = ErrCodeNotFound, "Tournament not found"
	case errors.Is(err, arena.ErrTournamentFull), errors.Is(err, arena.ErrTournamentClosed), errors.Is(err, arena.ErrAlreadyJoined):
		code, msg = ErrCodeConflict, err.Error()
	case errors.Is(err, wallet.ErrAlreadyRefunded):
		code, msg = ErrCodeConflict, err.Error()
	case errors.Is(err, arena.ErrNotFound), errors.Is(err, store.ErrNotFound):
		code, msg = ErrCodeNotFound, "Resource not found"
	case errors.Is(err, arena.ErrBusy):
		code, msg = ErrCodeConflict, "Restart already in progress"
	case errors.Is(err, game.ErrNotEnded):
		code, msg = ErrCodeSessionNotEnded, "Session has not ended"
	case errors.Is(err, game.ErrClosed):
		code, msg = ErrCodeConflict, "Session is closed"
	case errors.Is(err, errInvalidTicket):
		code, msg = ErrCodeUnauthorized, "Invalid or expired ticket"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code, msg = ErrCodeServiceUnavailable, "Request timed out"
	}
	return &APIError{Code: code, Message: msg, Timestamp: time.Now()}, statusCodeFor(code)
}

func statusCodeFor(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeValidationError:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeWalletRequired:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeWrongWallet:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeSessionNotEnded:
		return http.StatusConflict
	case ErrCodeRateLimit, ErrCodeDailyLimit:
		return http.StatusTooManyRequests
	case ErrCodeInsufficientFunds, ErrCodePaymentFailed:
		return http.StatusPaymentRequired
	case ErrCodeServiceUnavailable, ErrCodeArenaFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// logError logs server errors and validation failures; other client errors
// are expected traffic.
func (eh *ErrorHandler) logError(c *gin.Context, apiErr *APIError, status int, cause error) {
	if status < 500 && apiErr.Code != ErrCodeValidationError {
		return
	}
	entry := map[string]any{
		"timestamp":  time.Now().Format(time.RFC3339),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     status,
		"error_code": apiErr.Code,
		"message":    apiErr.Message,
		"cause":      cause.Error(),
		"ip":         c.ClientIP(),
		"request_id": apiErr.RequestID,
	}
	if status >= 500 {
		entry["stack_trace"] = getStackTrace()
	}
	if apiErr.Details != nil {
		entry["details"] = apiErr.Details
	}
	line, _ := json.Marshal(entry)
	eh.logger.Printf("ERROR: %s", line)
}

// Recovery converts panics into INTERNAL_ERROR responses.
func (eh *ErrorHandler) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				eh.logger.Printf("PANIC: %v\n%s", rec, getStackTrace())
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error: &APIError{
						Code:      ErrCodeInternalError,
						Message:   "Internal server error",
						Timestamp: time.Now(),
						RequestID: c.GetString(requestIDKey),
					},
				})
			}
		}()
		c.Next()
	}
}

func getStackTrace() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Error creation helpers

func NewValidationError(message string, details map[string]any) *APIError {
	return &APIError{Code: ErrCodeValidationError, Message: message, Details: details, Timestamp: time.Now()}
}

func NewInvalidRequestError(message string) *APIError {
	return &APIError{Code: ErrCodeInvalidRequest, Message: message, Timestamp: time.Now()}
}

func NewUnauthorizedError(message string) *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: message, Timestamp: time.Now()}
}

func NewForbiddenError(message string) *APIError {
	return &APIError{Code: ErrCodeForbidden, Message: message, Timestamp: time.Now()}
}

func NewNotFoundError(message string) *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: message, Timestamp: time.Now()}
}

func NewRateLimitError(retryAfter time.Duration) *APIError {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &APIError{
		Code:      ErrCodeRateLimit,
		Message:   "Too many requests",
		Details:   map[string]any{"retry_after": secs},
		Timestamp: time.Now(),
	}
}
