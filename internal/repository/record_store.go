package repository

import (
	"context"
	stderrors "errors"

	"github.com/eaglebank/accounts/shared/models"
)

var (
	// ErrNotFound is returned when no record has the requested id or username.
	ErrNotFound = stderrors.New("user not found")
	// ErrUsernameTaken is returned when a write would leave two records with
	// the same username.
	ErrUsernameTaken = stderrors.New("username already taken")
)

// RecordStore persists user records. Implementations must make every method
// atomic with respect to the others so that concurrent writers never lose
// updates.
type RecordStore interface {
	LoadAll(ctx context.Context) ([]models.UserRecord, error)
	SaveAll(ctx context.Context, records []models.UserRecord) error
	FindByID(ctx context.Context, id int64) (*models.UserRecord, error)
	FindByUsername(ctx context.Context, username string) (*models.UserRecord, error)
	// Insert assigns rec.ID and stores rec.
	Insert(ctx context.Context, rec *models.UserRecord) error
	UpdateByID(ctx context.Context, id int64, patch models.UserPatch) (*models.UserRecord, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// StoreKind classifies storage failures.
type StoreKind int

const (
	IOFailure StoreKind = iota + 1
	CorruptData
)

func (k StoreKind) String() string {
	switch k {
	case IOFailure:
		return "io failure"
	case CorruptData:
		return "corrupt data"
	default:
		return "unknown"
	}
}

// StoreError reports that the backing store could not be read or written.
type StoreError struct {
	Kind StoreKind
	Err  error
}

var (
	ErrIOFailure   = &StoreError{Kind: IOFailure}
	ErrCorruptData = &StoreError{Kind: CorruptData}
)

func (e *StoreError) Error() string {
	if e.Err != nil {
		return "store " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "store " + e.Kind.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	return ok && t.Kind == e.Kind
}
