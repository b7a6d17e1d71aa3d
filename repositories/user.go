package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	userPrefix      = "user:"
	userEmailPrefix = "user_email:"
	userNamePrefix  = "user_name:"
)

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log, now: time.Now}
}

// diskUser is the stored shape of a user.
// Equivalent to diskMessage for the account domain.
type diskUser struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"passwordHash"`
	Online        bool      `json:"online"`
	LastSeen      time.Time `json:"lastSeen"`
	ConnectionRef *string   `json:"connectionRef,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CreateUser persists a new user and reserves its email and username.
// The caller provides an already hashed password.
func (u *UserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	now := u.now().UTC()
	user.ID = uuid.NewString()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Presence = domain.Presence{LastSeen: now}

	emailKey := userEmailPrefix + user.Email
	nameKey := userNamePrefix + strings.ToLower(user.Username)

	err := update(u.db, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(emailKey)); err == nil {
			return errors.ErrEmailTaken
		}
		if _, err := txn.Get([]byte(nameKey)); err == nil {
			return errors.ErrUsernameTaken
		}
		if err := txn.Set([]byte(emailKey), []byte(user.ID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(nameKey), []byte(user.ID)); err != nil {
			return err
		}
		return setJSON(txn, userPrefix+user.ID, fromUser(user))
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) FindByID(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var record diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userPrefix+id, &record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(record), nil
}

func (u *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var record diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, userEmailPrefix+strings.ToLower(strings.TrimSpace(email)))
		if err != nil {
			return err
		}
		return getJSON(txn, userPrefix+id, &record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(record), nil
}

// ListUsers returns every user except excludeID, sorted by username.
func (u *UserRepository) ListUsers(ctx context.Context, excludeID string) ([]domain.User, error) {
	users, err := u.scan(ctx)
	if err != nil {
		return nil, err
	}
	users = lo.Filter(users, func(item domain.User, _ int) bool {
		return item.ID != excludeID
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// ListOnline returns the users whose durable record says online.
func (u *UserRepository) ListOnline(ctx context.Context) ([]domain.User, error) {
	users, err := u.scan(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(users, func(item domain.User, _ int) bool {
		return item.Presence.Online
	}), nil
}

// UpdatePresence writes the presence attributes of a user.
// Updates are last-write-wins on LastSeen: an update older than the stored
// record is ignored, so a late offline write cannot overwrite a newer connect.
func (u *UserRepository) UpdatePresence(ctx context.Context, id string, presence domain.Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := update(u.db, func(txn *badger.Txn) error {
		var record diskUser
		if err := getJSON(txn, userPrefix+id, &record); err != nil {
			return err
		}
		if presence.LastSeen.Before(record.LastSeen) {
			u.log.Debug("Ignoring stale presence update",
				"user_id", id, "online", presence.Online,
				"stored_last_seen", record.LastSeen, "update_last_seen", presence.LastSeen)
			return nil
		}
		record.Online = presence.Online
		record.LastSeen = presence.LastSeen.UTC()
		record.ConnectionRef = presence.ConnectionRef
		record.UpdatedAt = u.now().UTC()
		return setJSON(txn, userPrefix+id, record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("presence update for %s: %w", id, err)
	}
	return nil
}

func (u *UserRepository) scan(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(userPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record diskUser
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			users = append(users, toUser(record))
		}
		return nil
	})
	return users, err
}

func fromUser(user domain.User) diskUser {
	return diskUser{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		Online:        user.Presence.Online,
		LastSeen:      user.Presence.LastSeen,
		ConnectionRef: user.Presence.ConnectionRef,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func toUser(record diskUser) domain.User {
	return domain.User{
		ID:           record.ID,
		Username:     record.Username,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Presence: domain.Presence{
			Online:        record.Online,
			LastSeen:      record.LastSeen,
			ConnectionRef: record.ConnectionRef,
		},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
