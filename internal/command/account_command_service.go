package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eaglebank/accounts/internal/repository"
	"github.com/eaglebank/accounts/internal/service"
	"github.com/eaglebank/accounts/shared/cqrs"
	"github.com/eaglebank/accounts/shared/events"
	"github.com/eaglebank/accounts/shared/models"
	"github.com/eaglebank/accounts/shared/utils"
)

// EventPublisher appends domain events to a stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService writes user state to the record store and keeps the
// read model and event stream up to date.
type AccountCommandService struct {
	store     repository.RecordStore
	readRepo  *repository.UserReadRepository
	hasher    *utils.PasswordHasher
	publisher EventPublisher
	logger    *slog.Logger
}

// NewAccountCommandService accepts a nil publisher when events are disabled.
func NewAccountCommandService(
	store repository.RecordStore,
	readRepo *repository.UserReadRepository,
	hasher *utils.PasswordHasher,
	publisher EventPublisher,
	logger *slog.Logger,
) *AccountCommandService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountCommandService{
		store:     store,
		readRepo:  readRepo,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger,
	}
}

// Register creates a user. The username is checked before hashing so that a
// duplicate does not pay for bcrypt, and again by the store under its lock.
func (s *AccountCommandService) Register(ctx context.Context, cmd cqrs.RegisterCommand) (*models.UserView, error) {
	_, err := s.store.FindByUsername(ctx, cmd.Username)
	if err == nil {
		return nil, service.Failure(service.AlreadyExists, "username "+cmd.Username+" exists")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}

	passwordHash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	rec := &models.UserRecord{
		Username:     cmd.Username,
		PasswordHash: passwordHash,
		Email:        cmd.Email,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, service.Failure(service.AlreadyExists, "username "+cmd.Username+" taken concurrently")
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	view := models.ToView(rec)
	s.readRepo.CacheUserView(ctx, view)
	s.publish(ctx, events.UserRegistered, events.UserRegisteredEvent{
		UserID:   view.ID,
		Username: view.Username,
		Email:    view.Email,
	})
	s.logger.InfoContext(ctx, "user registered", slog.Int64("user_id", view.ID))
	return view, nil
}

// UpdateUser patches username and/or email. A username held by another user
// is rejected with AlreadyExists, the same rule Register applies. The cached
// view is evicted rather than rewritten; the next read fills it from the store.
func (s *AccountCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error) {
	rec, err := s.store.UpdateByID(ctx, cmd.UserID, models.UserPatch{
		Username: cmd.Username,
		Email:    cmd.Email,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, service.Failure(service.NotFound, fmt.Sprintf("update of missing user %d", cmd.UserID))
	case errors.Is(err, repository.ErrUsernameTaken):
		return nil, service.Failure(service.AlreadyExists, fmt.Sprintf("user %d renamed onto taken username", cmd.UserID))
	case err != nil:
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	view := models.ToView(rec)
	s.readRepo.InvalidateUserView(ctx, view.ID)
	s.publish(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID:   view.ID,
		Username: view.Username,
		Email:    view.Email,
	})
	return view, nil
}

func (s *AccountCommandService) DeleteUser(ctx context.Context, cmd cqrs.DeleteUserCommand) error {
	removed, err := s.store.DeleteByID(ctx, cmd.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !removed {
		return service.Failure(service.NotFound, fmt.Sprintf("delete of missing user %d", cmd.UserID))
	}

	s.readRepo.InvalidateUserView(ctx, cmd.UserID)
	s.publish(ctx, events.UserDeleted, events.UserDeletedEvent{UserID: cmd.UserID})
	s.logger.InfoContext(ctx, "user deleted", slog.Int64("user_id", cmd.UserID))
	return nil
}

// publish is best effort: the store write already succeeded.
func (s *AccountCommandService) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.UserEventsStream, eventType, data); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", slog.String("type", eventType), slog.Any("error", err))
	}
}
