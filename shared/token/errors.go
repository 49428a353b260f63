package token

// ErrorKind classifies why a token was rejected.
type ErrorKind int

const (
	Malformed ErrorKind = iota + 1
	InvalidSignature
	Expired
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case InvalidSignature:
		return "invalid signature"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Error is returned by Validate. Compare kinds with errors.Is against
// ErrMalformed, ErrInvalidSignature and ErrExpired.
type Error struct {
	Kind ErrorKind
	Err  error
}

var (
	ErrMalformed        = &Error{Kind: Malformed}
	ErrInvalidSignature = &Error{Kind: InvalidSignature}
	ErrExpired          = &Error{Kind: Expired}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return "token " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "token " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
