package arenadto

// Error codes shared between the orchestrator core and the transport
// adapter. The adapter maps them onto wire acks; the core never formats
// user-facing text.
const (
	CodeValidation     = "validation"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeAntiCheat      = "anti_cheat"
	CodeRulesViolation = "rules_violation"
	CodeInternal       = "internal"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}

func Validation(msg string) error { return DomainError{Code: CodeValidation, Message: msg} }
func NotFound(msg string) error   { return DomainError{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) error   { return DomainError{Code: CodeConflict, Message: msg} }
func Internal(msg string) error   { return DomainError{Code: CodeInternal, Message: msg, Retryable: true} }

// AntiCheat marks a single-move rejection; the session itself stays live.
func AntiCheat(msg string) error {
	return DomainError{Code: CodeAntiCheat, Message: msg, Retryable: true}
}

func RulesViolation(msg string) error {
	return DomainError{Code: CodeRulesViolation, Message: msg, Retryable: true}
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := err.(DomainError); ok {
		return de.Code
	}
	return CodeInternal
}

func IsValidation(err error) bool     { return codeOf(err) == CodeValidation }
func IsNotFound(err error) bool       { return codeOf(err) == CodeNotFound }
func IsConflict(err error) bool       { return codeOf(err) == CodeConflict }
func IsAntiCheat(err error) bool      { return codeOf(err) == CodeAntiCheat }
func IsRulesViolation(err error) bool { return codeOf(err) == CodeRulesViolation }

// ErrorCode exposes the code for wire acks; unknown errors collapse to internal.
func ErrorCode(err error) string { return codeOf(err) }
