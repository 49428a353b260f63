package repository

import (
	"context"
	"strconv"
	"sync"

	"github.com/eaglebank/accounts/shared/models"
)

const userViewKeyPrefix = "user:view:"

// ViewCache is the subset of the Redis view cache the read side needs.
type ViewCache interface {
	Get(ctx context.Context, key string) (*models.UserView, bool)
	Set(ctx context.Context, key string, value *models.UserView)
	Delete(ctx context.Context, key string)
}

// UserReadRepository serves user views from the cache when one is configured,
// falling back to the record store on a miss.
//
// generation counts cache writes and evictions. A miss only fills the cache
// when no write happened while it was reading the store, so a read that
// raced an update cannot put the old view back.
type UserReadRepository struct {
	store RecordStore
	cache ViewCache

	mu         sync.Mutex
	generation uint64
}

// NewUserReadRepository accepts a nil cache, in which case every read goes to
// the store.
func NewUserReadRepository(store RecordStore, cache ViewCache) *UserReadRepository {
	return &UserReadRepository{store: store, cache: cache}
}

// GetByID returns a UserView from the cache first, then the store.
func (r *UserReadRepository) GetByID(ctx context.Context, id int64) (*models.UserView, error) {
	if r.cache == nil {
		rec, err := r.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return models.ToView(rec), nil
	}

	if view, ok := r.cache.Get(ctx, userViewKey(id)); ok {
		return view, nil
	}

	r.mu.Lock()
	seen := r.generation
	r.mu.Unlock()

	rec, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := models.ToView(rec)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation == seen {
		r.cache.Set(ctx, userViewKey(id), view)
	}
	return view, nil
}

// List always reads the store so the result reflects every record.
func (r *UserReadRepository) List(ctx context.Context) ([]models.UserView, error) {
	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.UserView, 0, len(records))
	for i := range records {
		views = append(views, *models.ToView(&records[i]))
	}
	return views, nil
}

// CacheUserView stores or refreshes the cached view for a user.
func (r *UserReadRepository) CacheUserView(ctx context.Context, view *models.UserView) {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.cache.Set(ctx, userViewKey(view.ID), view)
}

// InvalidateUserView removes the cached view for a user.
func (r *UserReadRepository) InvalidateUserView(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.cache.Delete(ctx, userViewKey(id))
}

func userViewKey(id int64) string {
	return userViewKeyPrefix + strconv.FormatInt(id, 10)
}
