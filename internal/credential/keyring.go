package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"inbox-triage/internal/model"
)

const (
	serviceName = "inbox-triage"

	accountKey      = "gmail-account"
	imapPasswordKey = "imap-password"
)

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store keeps mailbox credentials in the system keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the first available system keyring,
// falling back to an encrypted file under fileDir.
func Open(fileDir, filePassword string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// LoadAccount returns the signed-in Gmail account and its OAuth tokens.
func (s *Store) LoadAccount() (*model.Account, error) {
	raw, err := s.Get(accountKey)
	if err != nil {
		return nil, err
	}
	var account model.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return nil, fmt.Errorf("decoding stored account: %w", err)
	}
	return &account, nil
}

func (s *Store) SaveAccount(account *model.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}
	return s.Set(accountKey, string(raw))
}

func (s *Store) DeleteAccount() error {
	return s.Delete(accountKey)
}

// IMAPPassword returns the stored IMAP password, or fallback when none is
// stored.
func (s *Store) IMAPPassword(fallback string) (string, error) {
	password, err := s.Get(imapPasswordKey)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return password, err
}

func (s *Store) SetIMAPPassword(password string) error {
	return s.Set(imapPasswordKey, password)
}
