package query

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
	"github.com/eaglebank/accounts/shared/token"
	"github.com/eaglebank/accounts/shared/utils"
)

// AccountQueryService handles login, token validation and user reads. None of
// these mutate user records.
type AccountQueryService struct {
	store    repository.RecordStore
	readRepo *repository.UserReadRepository
	hasher   *utils.PasswordHasher
	tokens   *token.Service
	logger   *slog.Logger

	// decoyHash is verified against when the username is unknown so both
	// login failures cost one bcrypt comparison.
	decoyHash string
}

func NewAccountQueryService(
	store repository.RecordStore,
	readRepo *repository.UserReadRepository,
	hasher *utils.PasswordHasher,
	tokens *token.Service,
	logger *slog.Logger,
) (*AccountQueryService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	decoy, err := hasher.Hash("decoy-password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare decoy hash: %w", err)
	}
	return &AccountQueryService{
		store:     store,
		readRepo:  readRepo,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		decoyHash: decoy,
	}, nil
}

// Login returns a signed session token. An unknown username and a wrong
// password produce errors with the same kind and message.
func (s *AccountQueryService) Login(ctx context.Context, cmd cqrs.LoginCommand) (string, error) {
	user, err := s.store.FindByUsername(ctx, cmd.Username)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(cmd.Password, s.decoyHash)
		return "", service.Failure(service.InvalidCredentials, "unknown username")
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if !s.hasher.Verify(cmd.Password, user.PasswordHash) {
		return "", service.Failure(service.InvalidCredentials, "password mismatch")
	}
	return s.tokens.Issue(user.ID, user.Username)
}

// ValidateToken returns the claims of a valid token or a *token.Error.
func (s *AccountQueryService) ValidateToken(tokenString string) (*token.Claims, error) {
	return s.tokens.Validate(tokenString)
}

func (s *AccountQueryService) ListUsers(ctx context.Context, _ cqrs.ListUsersQuery) ([]models.UserView, error) {
	views, err := s.readRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return views, nil
}

func (s *AccountQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	view, err := s.readRepo.GetByID(ctx, q.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, service.Failure(service.NotFound, fmt.Sprintf("user %d", q.UserID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return view, nil
}

// HandleUserEvent is the Redis stream subscriber handler. Another replica may
// have cached a view while the change was in flight, so updates and deletes
// evict the view once more when the event comes back.
func (s *AccountQueryService) HandleUserEvent(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.UserDeleted:
		var data events.UserDeletedEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		s.readRepo.InvalidateUserView(ctx, data.UserID)
	case events.UserUpdated:
		var data events.UserUpdatedEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		s.readRepo.InvalidateUserView(ctx, data.UserID)
	case events.UserRegistered:
		s.logger.DebugContext(ctx, "user event observed", slog.String("type", event.Type))
	default:
		s.logger.WarnContext(ctx, "unknown user event", slog.String("type", event.Type))
	}
	return nil
}
