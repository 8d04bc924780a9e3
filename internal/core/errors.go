package core

import "errors"

// Error codes for domain errors. They are sent to clients verbatim.
const (
	ErrCodeBadRequest          = "bad_request"
	ErrCodeUnknownType         = "unknown_type"
	ErrCodeUnsupportedVersion  = "unsupported_version"
	ErrCodeUnknownParticipant  = "unknown_participant"
	ErrCodePersistenceFailure  = "persistence_failure"
	ErrCodeDuplicateConnection = "duplicate_connection"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternal            = "internal"
)

var (
	// ErrProtocol marks malformed or semantically invalid frames. The connection survives.
	ErrProtocol = errors.New("protocol error")
	// ErrUnknownParticipant means a sender or receiver id does not resolve to a user.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrPersistence means the durable store rejected or failed a read/write.
	ErrPersistence = errors.New("persistence failure")
	// ErrDuplicateConnection is returned by Register when the single-session policy is on.
	ErrDuplicateConnection = errors.New("duplicate connection")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code string, kind error, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: kind}
}

// ProtocolError builds a CoreError for a bad frame.
func ProtocolError(code, msg string) *CoreError {
	return coreError(code, ErrProtocol, msg)
}

// AsCoreError converts any error into the CoreError reported to a client.
// Internal details of unexpected errors are not leaked.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrUnknownParticipant):
		return coreError(ErrCodeUnknownParticipant, err, "unknown participant")
	case errors.Is(err, ErrPersistence):
		return coreError(ErrCodePersistenceFailure, err, "message could not be stored")
	case errors.Is(err, ErrDuplicateConnection):
		return coreError(ErrCodeDuplicateConnection, err, "user already connected")
	case errors.Is(err, ErrProtocol):
		return coreError(ErrCodeBadRequest, err, err.Error())
	default:
		return coreError(ErrCodeInternal, err, "internal error")
	}
}

// CodeOf maps any error to the code reported on the wire.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return AsCoreError(err).Code
}
