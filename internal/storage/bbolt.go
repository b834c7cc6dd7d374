package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"techpaint/internal/auth"
	"techpaint/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketUsersByEmail  = []byte("users_by_email")
	bucketTokens        = []byte("tokens")
	bucketProjects      = []byte("projects")
	bucketVotes         = []byte("votes")
	bucketComments      = []byte("comments")
	bucketDirect        = []byte("direct")
	bucketRooms         = []byte("rooms")
	bucketSubscriptions = []byte("push_subscriptions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUsersByEmail,
			bucketTokens,
			bucketProjects,
			bucketVotes,
			bucketComments,
			bucketDirect,
			bucketRooms,
			bucketSubscriptions,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user. E-mail addresses are unique.
func (s *BboltStorage) CreateUser(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(bucketUsersByEmail)
		email := []byte(strings.ToLower(credentials.Email))
		if byEmail.Get(email) != nil {
			return auth.ErrUserExists
		}

		dbUser := &DBUser{
			ID:           credentials.ID,
			Name:         credentials.Name,
			Email:        string(email),
			Area:         credentials.Area,
			GitHub:       credentials.GitHub,
			PasswordHash: credentials.PasswordHash,
			CreatedAt:    credentials.CreatedAt,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketUsers).Put(dbUser.Key(), data); err != nil {
			return err
		}
		return byEmail.Put(email, dbUser.Key())
	})
}

func (s *BboltStorage) GetUser(id string) (auth.UserCredentials, error) {
	var creds auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		creds, err = getUser(tx, id)
		return err
	})
	return creds, err
}

func (s *BboltStorage) GetUserByEmail(email string) (auth.UserCredentials, error) {
	var creds auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUsersByEmail).Get([]byte(strings.ToLower(email)))
		if id == nil {
			return models.ErrNotFound
		}
		var err error
		creds, err = getUser(tx, string(id))
		return err
	})
	return creds, err
}

func getUser(tx *bbolt.Tx, id string) (auth.UserCredentials, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return auth.UserCredentials{}, models.ErrNotFound
	}
	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return auth.UserCredentials{}, fmt.Errorf("failed to unmarshal user %s: %w", id, err)
	}
	return dbUser.credentials(), nil
}

func (u *DBUser) credentials() auth.UserCredentials {
	return auth.UserCredentials{
		User: models.User{
			ID:     u.ID,
			Name:   u.Name,
			Email:  u.Email,
			Area:   u.Area,
			GitHub: u.GitHub,
		},
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

// ListUsers returns all users sorted by name.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, dbUser.credentials().User)
			return nil
		})
	})
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Name) < strings.ToLower(users[j].Name)
	})
	return users, err
}

func (s *BboltStorage) DeleteUser(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		creds, err := getUser(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketUsersByEmail).Delete([]byte(creds.Email)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketSubscriptions).DeleteBucket([]byte(id)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		return tx.Bucket(bucketUsers).Delete([]byte(id))
	})
}

func (s *BboltStorage) UpsertToken(token auth.StoredToken) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbToken := &DBToken{
			Hash:      token.Hash,
			UserID:    token.UserID,
			ExpiresAt: token.ExpiresAt,
		}
		data, err := dbToken.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTokens).Put(dbToken.Key(), data)
	})
}

func (s *BboltStorage) DeleteToken(tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(tokenHash))
	})
}

func (s *BboltStorage) ListTokens() ([]auth.StoredToken, error) {
	var tokens []auth.StoredToken
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens = append(tokens, auth.StoredToken{
				Hash:      dbToken.Hash,
				UserID:    dbToken.UserID,
				ExpiresAt: dbToken.ExpiresAt,
			})
			return nil
		})
	})
	return tokens, err
}
