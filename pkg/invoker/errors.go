package invoker

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error code taxonomy. Two tiers: retryable (transient) and non-retryable
// (terminal). An agent endpoint's own error chunk may carry any string
// here; retryability is always decided by this table, never by what the
// agent claims, so a misbehaving agent cannot talk its way into an
// unbounded retry loop.
const (
	ErrBedrockThrottling       = "BEDROCK_THROTTLING"
	ErrDataSourceUnavailable   = "DATA_SOURCE_UNAVAILABLE"
	ErrRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	ErrTimeout                 = "TIMEOUT"
	ErrInvalidInput            = "INVALID_INPUT"
	ErrOutputValidationFailed  = "OUTPUT_VALIDATION_FAILED"
	ErrSchemaValidationFailed  = "SCHEMA_VALIDATION_FAILED"
	ErrLowConfidence           = "LOW_CONFIDENCE"
	ErrInternalError           = "INTERNAL_ERROR"
	ErrBudgetExceeded          = "BUDGET_EXCEEDED"
	ErrGuardrailBlocked        = "GUARDRAIL_BLOCKED"
	ErrUnknownError            = "UNKNOWN_ERROR"
)

var retryableCodes = map[string]bool{
	ErrBedrockThrottling:     true,
	ErrDataSourceUnavailable: true,
	ErrRateLimitExceeded:     true,
	ErrTimeout:               true,
}

func isRetryable(code string) bool {
	return retryableCodes[code]
}

// classifyTransportError maps a Go-level transport failure (gRPC status,
// context deadline) onto the taxonomy. Used when the stream itself errors
// out, as opposed to the agent reporting a structured ErrorSignal.
func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable:
			return ErrDataSourceUnavailable
		case codes.ResourceExhausted:
			return ErrRateLimitExceeded
		case codes.DeadlineExceeded:
			return ErrTimeout
		case codes.PermissionDenied, codes.Unauthenticated:
			return ErrInternalError
		}
	}
	return ErrUnknownError
}

// normalizeErrorCode falls back to UNKNOWN_ERROR for anything an agent
// reports that isn't in the taxonomy.
func normalizeErrorCode(code string) string {
	if _, known := retryableCodes[code]; known {
		return code
	}
	switch code {
	case ErrInvalidInput, ErrOutputValidationFailed, ErrSchemaValidationFailed,
		ErrLowConfidence, ErrInternalError, ErrBudgetExceeded, ErrGuardrailBlocked:
		return code
	default:
		return ErrUnknownError
	}
}
