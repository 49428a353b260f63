package command

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eaglebank/accounts/internal/repository"
	"github.com/eaglebank/accounts/internal/service"
	"github.com/eaglebank/accounts/shared/cqrs"
	"github.com/eaglebank/accounts/shared/events"
	"github.com/eaglebank/accounts/shared/utils"
)

type publishedEvent struct {
	stream    string
	eventType string
	data      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{stream: stream, eventType: eventType, data: data})
	return p.err
}

type fixture struct {
	store     *repository.FileStore
	publisher *recordingPublisher
	svc       *AccountCommandService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := repository.NewFileStore(filepath.Join(t.TempDir(), "users.json"), true)
	require.NoError(t, err)
	pub := &recordingPublisher{}
	svc := NewAccountCommandService(
		store,
		repository.NewUserReadRepository(store, nil),
		utils.NewPasswordHasher(bcrypt.MinCost),
		pub,
		nil,
	)
	return &fixture{store: store, publisher: pub, svc: svc}
}

func strPtr(s string) *string { return &s }

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw123", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.ID)
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, "a@x.com", view.Email)

	rec, err := f.store.FindByID(ctx, view.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", rec.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("pw123")))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.UserEventsStream, f.publisher.events[0].stream)
	assert.Equal(t, events.UserRegistered, f.publisher.events[0].eventType)
	assert.Equal(t, events.UserRegisteredEvent{UserID: 1, Username: "alice", Email: "a@x.com"}, f.publisher.events[0].data)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw123", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "other", Email: "b@x.com"})
	assert.ErrorIs(t, err, service.ErrAlreadyExists)

	users, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRegister_IDsNotReusedAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: name, Password: "pw", Email: name + "@x.com"})
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.DeleteUser(ctx, cqrs.DeleteUserCommand{UserID: 1}))

	dave, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "dave", Password: "pw", Email: "d@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), dave.ID)
}

func TestRegister_ConcurrentDistinctUsernames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 30

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, cqrs.RegisterCommand{
				Username: fmt.Sprintf("user-%d", i),
				Password: "pw",
				Email:    fmt.Sprintf("user-%d@x.com", i),
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	users, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, n)

	ids := map[int64]bool{}
	for _, u := range users {
		ids[u.ID] = true
	}
	assert.Len(t, ids, n)
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 10

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw", Email: "a@x.com"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, service.ErrAlreadyExists)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRegister_StoreFailureIsNotAccountError(t *testing.T) {
	store, err := repository.NewFileStore(filepath.Join(t.TempDir(), "absent", "users.json"), false)
	require.NoError(t, err)
	svc := NewAccountCommandService(store, repository.NewUserReadRepository(store, nil),
		utils.NewPasswordHasher(bcrypt.MinCost), nil, nil)

	_, err = svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "pw"})
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrIOFailure)

	var accErr *service.AccountError
	assert.False(t, errors.As(err, &accErr))
}

func TestRegister_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "pw", Email: "a@x.com"})
	assert.NoError(t, err)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw", Email: "a@x.com"})
	require.NoError(t, err)

	view, err := f.svc.UpdateUser(ctx, cqrs.UpdateUserCommand{UserID: alice.ID, Email: strPtr("alice@new.com")})
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, "alice@new.com", view.Email)

	rec, err := f.store.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@new.com", rec.Email)
	assert.NotEmpty(t, rec.PasswordHash, "password hash survives an update")

	last := f.publisher.events[len(f.publisher.events)-1]
	assert.Equal(t, events.UserUpdated, last.eventType)
}

func TestUpdateUser_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateUser(context.Background(), cqrs.UpdateUserCommand{UserID: 5, Username: strPtr("ghost")})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// Updates enforce username uniqueness the same way registration does.
func TestUpdateUser_RejectsDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw", Email: "a@x.com"})
	require.NoError(t, err)
	bob, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "bob", Password: "pw", Email: "b@x.com"})
	require.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, cqrs.UpdateUserCommand{UserID: bob.ID, Username: strPtr("alice")})
	assert.ErrorIs(t, err, service.ErrAlreadyExists)

	rec, err := f.store.FindByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Username)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw", Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(ctx, cqrs.DeleteUserCommand{UserID: alice.ID}))

	_, err = f.store.FindByID(ctx, alice.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	last := f.publisher.events[len(f.publisher.events)-1]
	assert.Equal(t, events.UserDeleted, last.eventType)
	assert.Equal(t, events.UserDeletedEvent{UserID: alice.ID}, last.data)
}

func TestDeleteUser_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, cqrs.RegisterCommand{Username: "alice", Password: "pw", Email: "a@x.com"})
	require.NoError(t, err)
	published := len(f.publisher.events)

	err = f.svc.DeleteUser(ctx, cqrs.DeleteUserCommand{UserID: 42})
	assert.ErrorIs(t, err, service.ErrNotFound)

	users, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Len(t, f.publisher.events, published)
}
