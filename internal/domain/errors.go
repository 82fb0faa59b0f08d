package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrUnavailable   = fmt.Errorf("unavailable")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound    = fmt.Errorf("llm provider not found")
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrNoParticipants      = fmt.Errorf("no participants selected")
	ErrConfigLoad          = fmt.Errorf("failed to load configuration")
	ErrDecryption          = fmt.Errorf("decryption failed")
	ErrStreamInterrupted   = fmt.Errorf("stream interrupted")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrCircuitOpen     = fmt.Errorf("circuit open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Driver.Run")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "participant"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"
	CodeNoParticipants      ErrorCode = "NO_PARTICIPANTS"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeStreamInterrupted   ErrorCode = "STREAM_INTERRUPTED"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeDebateParams     ErrorCode = "DEBATE_INVALID_PARAMS"
	CodeProviderTimeout  ErrorCode = "PROVIDER_TIMEOUT"
	CodeProviderUpstream ErrorCode = "PROVIDER_UPSTREAM"

	// Category codes.
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
	CodeUnavailable   ErrorCode = "UNAVAILABLE"
)

var errorCodeMap = map[error]ErrorCode{
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,
	ErrUnavailable:   CodeUnavailable,

	ErrProviderNotFound:    CodeProviderNotFound,
	ErrParticipantNotFound: CodeParticipantNotFound,
	ErrNoParticipants:      CodeNoParticipants,
	ErrConfigLoad:          CodeConfigLoad,
	ErrDecryption:          CodeDecryption,
	ErrStreamInterrupted:   CodeStreamInterrupted,
	ErrContextOverflow:     CodeContextOverflow,
	ErrRateLimit:           CodeRateLimit,
	ErrAuthInvalid:         CodeAuthInvalid,
	ErrCircuitOpen:         CodeCircuitOpen,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrInvalidInput: {
		"debate": CodeDebateParams,
	},
	ErrTimeout: {
		"provider": CodeProviderTimeout,
	},
	ErrUnavailable: {
		"provider": CodeProviderUpstream,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
