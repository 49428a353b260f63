package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/eaglebank/accounts/shared/models"
)

// usersFile is the on-disk layout. LastID is the highest id ever handed out,
// so ids are never reused after a delete.
type usersFile struct {
	LastID int64               `json:"lastId"`
	Users  []models.UserRecord `json:"users"`
}

// FileStore keeps every user in one JSON file. Each call reads the whole file,
// mutates it in memory and writes it back; mu serialises those cycles so two
// writers can never interleave and drop each other's changes.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens the store at path. When createIfMissing is set a missing
// file (and its directory) is created empty; otherwise reads of a missing file
// fail with an IOFailure.
func NewFileStore(path string, createIfMissing bool) (*FileStore, error) {
	s := &FileStore{path: path}
	if !createIfMissing {
		return s, nil
	}
	if _, err := os.Stat(path); err == nil {
		return s, nil
	} else if !os.IsNotExist(err) {
		return nil, &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "stat users file")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "create data directory")}
	}
	if err := s.write(&usersFile{Users: []models.UserRecord{}}); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) LoadAll(ctx context.Context) ([]models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return data.Users, nil
}

// SaveAll replaces the whole collection. The id counter never moves backwards.
func (s *FileStore) SaveAll(ctx context.Context, records []models.UserRecord) error {
	return s.update(func(data *usersFile) (bool, error) {
		data.Users = append([]models.UserRecord{}, records...)
		data.LastID = max(data.LastID, maxID(data.Users))
		return true, nil
	})
}

func (s *FileStore) FindByID(ctx context.Context, id int64) (*models.UserRecord, error) {
	users, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByID(users, id); i >= 0 {
		return &users[i], nil
	}
	return nil, ErrNotFound
}

func (s *FileStore) FindByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	users, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByUsername(users, username); i >= 0 {
		return &users[i], nil
	}
	return nil, ErrNotFound
}

func (s *FileStore) Insert(ctx context.Context, rec *models.UserRecord) error {
	return s.update(func(data *usersFile) (bool, error) {
		if indexByUsername(data.Users, rec.Username) >= 0 {
			return false, ErrUsernameTaken
		}
		data.LastID++
		rec.ID = data.LastID
		data.Users = append(data.Users, *rec)
		return true, nil
	})
}

func (s *FileStore) UpdateByID(ctx context.Context, id int64, patch models.UserPatch) (*models.UserRecord, error) {
	var updated models.UserRecord
	err := s.update(func(data *usersFile) (bool, error) {
		i := indexByID(data.Users, id)
		if i < 0 {
			return false, ErrNotFound
		}
		if patch.Username != nil {
			if j := indexByUsername(data.Users, *patch.Username); j >= 0 && j != i {
				return false, ErrUsernameTaken
			}
		}
		data.Users[i] = patch.Apply(data.Users[i])
		updated = data.Users[i]
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *FileStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	var removed bool
	err := s.update(func(data *usersFile) (bool, error) {
		i := indexByID(data.Users, id)
		if i < 0 {
			return false, nil
		}
		data.Users = append(data.Users[:i], data.Users[i+1:]...)
		removed = true
		return true, nil
	})
	return removed, err
}

// update runs fn against a fresh copy of the file and writes the result back
// when fn reports a change. The whole cycle holds mu.
func (s *FileStore) update(fn func(*usersFile) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	dirty, err := fn(data)
	if err != nil || !dirty {
		return err
	}
	return s.write(data)
}

func (s *FileStore) read() (*usersFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "read users file")}
	}

	raw = bytes.TrimSpace(raw)
	data := &usersFile{}
	if len(raw) > 0 && raw[0] == '[' {
		// Older files hold a bare array of records.
		if err := json.Unmarshal(raw, &data.Users); err != nil {
			return nil, &StoreError{Kind: CorruptData, Err: errors.Wrap(err, "decode users file")}
		}
	} else if err := json.Unmarshal(raw, data); err != nil {
		return nil, &StoreError{Kind: CorruptData, Err: errors.Wrap(err, "decode users file")}
	}
	if data.Users == nil {
		data.Users = []models.UserRecord{}
	}
	data.LastID = max(data.LastID, maxID(data.Users))
	return data, nil
}

// write replaces the file through a rename so readers never see a partial file.
func (s *FileStore) write(data *usersFile) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return &StoreError{Kind: CorruptData, Err: errors.Wrap(err, "encode users file")}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "create temp file")}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "write temp file")}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "sync temp file")}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "close temp file")}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &StoreError{Kind: IOFailure, Err: errors.Wrap(err, "replace users file")}
	}
	return nil
}

func indexByID(users []models.UserRecord, id int64) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func indexByUsername(users []models.UserRecord, username string) int {
	for i := range users {
		if users[i].Username == username {
			return i
		}
	}
	return -1
}

func maxID(users []models.UserRecord) int64 {
	var highest int64
	for _, u := range users {
		highest = max(highest, u.ID)
	}
	return highest
}
