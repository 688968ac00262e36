//go:generate go run go.uber.org/mock/mockgen -source=credential.go -destination=../mocks/mock_credential_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"loft-messaging/errors"
)

const credPrefix = "cred:"

type ICredentialRepository interface {
	Create(credential Credential) error
	GetByEmail(email string) (Credential, error)
}

// Credential is the login row for a directory profile. The plain password
// never reaches this layer; hashing happens in the auth service.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type CredentialRepository struct {
	db *badger.DB
}

func NewCredentialRepository(db *badger.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

type diskCredential struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Create persists the credential under "cred:{email}". The existence check
// and the write share one transaction, so two concurrent registrations of
// the same email cannot both succeed.
func (r *CredentialRepository) Create(credential Credential) error {
	data, err := json.Marshal(diskCredential{
		UserID:       credential.UserID,
		Email:        credential.Email,
		PasswordHash: credential.PasswordHash,
		CreatedAt:    credential.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	key := []byte(credPrefix + credential.Email)
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, data)
	})
}

func (r *CredentialRepository) GetByEmail(email string) (Credential, error) {
	var disk diskCredential
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credPrefix + email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return Credential{}, fmt.Errorf("credential %s: %w", email, errors.ErrNotFound)
	}
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		UserID:       disk.UserID,
		Email:        disk.Email,
		PasswordHash: disk.PasswordHash,
		CreatedAt:    disk.CreatedAt,
	}, nil
}
