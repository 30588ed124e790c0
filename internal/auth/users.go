package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/tendant/wirekit/internal/domain"
	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/store"
)

// maxWriteAttempts bounds the retries for id reservation and username commit.
const maxWriteAttempts = 3

// userStore keeps two records per user: byUsername/<name>.json with the
// password hash, and byId/<id>.json reserving the id.
type userStore struct {
	files  store.FileService
	logger *slog.Logger
}

type idRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func usernameFile(username string) string {
	return "byUsername/" + url.PathEscape(username) + ".json"
}

func idFile(id string) string {
	return "byId/" + url.PathEscape(id) + ".json"
}

// generateUUID generates a new UUID string.
func generateUUID() string {
	return uuid.New().String()
}

func (u *userStore) get(ctx context.Context, username string) (*domain.StoredUser, error) {
	data, err := u.files.Read(ctx, usernameFile(username))
	if err != nil {
		return nil, err
	}
	var user domain.StoredUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, apperrors.Internal("corrupt user record", err)
	}
	return &user, nil
}

func (u *userStore) getByID(ctx context.Context, id string) (*domain.User, error) {
	data, err := u.files.Read(ctx, idFile(id))
	if err != nil {
		return nil, err
	}
	var rec idRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Internal("corrupt user id record", err)
	}
	return &domain.User{ID: rec.ID, Username: rec.Username}, nil
}

func (u *userStore) has(ctx context.Context, username string) (bool, error) {
	_, err := u.get(ctx, username)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// create reserves a fresh id and then claims the username. It returns an
// error IsAlreadyExists recognises when the username is taken.
func (u *userStore) create(ctx context.Context, username, passwordHash string) (*domain.StoredUser, error) {
	id, err := u.reserveID(ctx, username)
	if err != nil {
		return nil, err
	}

	user := &domain.StoredUser{ID: id, Username: username, Password: passwordHash}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = u.files.Write(ctx, usernameFile(username), data, store.OnlyIfNotExists())
		if err == nil {
			return user, nil
		}
		if u.files.IsAlreadyExists(err) || attempt >= maxWriteAttempts {
			break
		}
		u.logger.Warn("retrying username commit", "attempt", attempt, "error", err)
	}

	if rbErr := u.files.Delete(ctx, idFile(id)); rbErr != nil {
		u.logger.Error("failed to roll back id reservation", "id", id, "error", rbErr)
	}
	return nil, err
}

func (u *userStore) reserveID(ctx context.Context, username string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		id := generateUUID()
		data, err := json.Marshal(idRecord{ID: id, Username: username})
		if err != nil {
			return "", err
		}
		lastErr = u.files.Write(ctx, idFile(id), data, store.OnlyIfNotExists())
		if lastErr == nil {
			return id, nil
		}
		u.logger.Warn("id reservation failed", "attempt", attempt, "error", lastErr)
	}
	return "", fmt.Errorf("failed to reserve user id: %w", lastErr)
}

// setPassword overwrites the stored hash of an existing user.
func (u *userStore) setPassword(ctx context.Context, user *domain.StoredUser, passwordHash string) error {
	updated := *user
	updated.Password = passwordHash
	data, err := json.Marshal(&updated)
	if err != nil {
		return err
	}
	return u.files.Write(ctx, usernameFile(user.Username), data)
}
