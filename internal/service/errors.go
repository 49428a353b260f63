// Package service defines the account error taxonomy shared by the command
// and query sides.
package service

// Kind identifies an expected account failure.
type Kind int

const (
	AlreadyExists Kind = iota + 1
	InvalidCredentials
	NotFound
)

func (k Kind) String() string {
	switch k {
	case AlreadyExists:
		return "user already exists"
	case InvalidCredentials:
		return "invalid credentials"
	case NotFound:
		return "user not found"
	default:
		return "account error"
	}
}

// AccountError is returned for expected, user-facing failures. Reason is for
// logs only and never changes the message, so a wrong password and an unknown
// username look the same to callers.
type AccountError struct {
	Kind   Kind
	Reason string
}

var (
	ErrAlreadyExists      = &AccountError{Kind: AlreadyExists}
	ErrInvalidCredentials = &AccountError{Kind: InvalidCredentials}
	ErrNotFound           = &AccountError{Kind: NotFound}
)

func (e *AccountError) Error() string {
	return e.Kind.String()
}

func (e *AccountError) Is(target error) bool {
	t, ok := target.(*AccountError)
	return ok && t.Kind == e.Kind
}

// Failure builds an AccountError of kind k carrying an internal reason.
func Failure(k Kind, reason string) *AccountError {
	return &AccountError{Kind: k, Reason: reason}
}
