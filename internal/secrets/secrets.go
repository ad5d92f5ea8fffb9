// Package secrets resolves the default agent credential and stores it
// securely when the platform allows. On macOS the credential lives in the
// system Keychain; elsewhere only the environment variable is consulted.
package secrets

import (
	"errors"
	"os"
	"strings"
)

// ServiceName is the keychain service under which adkinspect stores credentials.
const ServiceName = "adkinspect"

// AccountAPIKey is the keychain account holding the default agent credential.
const AccountAPIKey = "google-api-key"

// EnvAPIKey is the environment variable carrying the default credential.
const EnvAPIKey = "GOOGLE_API_KEY"

// ErrNotFound is returned when a credential is not found in the store.
var ErrNotFound = errors.New("credential not found")

// ErrNotSupported is returned when the secret store is not supported on the current platform.
var ErrNotSupported = errors.New("secret store not supported on this platform")

// SecretStore provides an interface for secure credential storage.
// Implementations should be safe for concurrent use.
type SecretStore interface {
	// Get retrieves a password for the given service and account.
	// Returns ErrNotFound if the credential does not exist.
	Get(service, account string) (string, error)

	// Set stores a password for the given service and account,
	// replacing any existing one.
	Set(service, account, password string) error

	// Delete removes a credential for the given service and account.
	// Returns ErrNotFound if the credential does not exist.
	Delete(service, account string) error

	// IsSupported returns true if this store is functional on the current platform.
	IsSupported() bool
}

// store is set by the platform-specific init() function.
var store SecretStore

// Default returns the SecretStore for the current platform. It never
// returns nil; unsupported platforms get a NoopStore.
func Default() SecretStore {
	if store == nil {
		store = &NoopStore{}
	}
	return store
}

// Source tells where a resolved credential came from.
type Source string

const (
	SourceNone     Source = ""
	SourceEnv      Source = "env"
	SourceKeychain Source = "keychain"
)

// Resolve returns the default credential, preferring the environment
// variable over the store. An empty credential with SourceNone means the
// agent service is called without one.
func Resolve(getenv func(string) string, s SecretStore) (string, Source) {
	if v := strings.TrimSpace(getenv(EnvAPIKey)); v != "" {
		return v, SourceEnv
	}
	if s == nil || !s.IsSupported() {
		return "", SourceNone
	}
	v, err := s.Get(ServiceName, AccountAPIKey)
	if err != nil || v == "" {
		return "", SourceNone
	}
	return v, SourceKeychain
}

// DefaultCredential resolves the credential from the process environment
// and the platform store.
func DefaultCredential() (string, Source) {
	return Resolve(os.Getenv, Default())
}

// StoreCredential saves the default credential in s.
func StoreCredential(s SecretStore, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return errors.New("credential must not be empty")
	}
	return s.Set(ServiceName, AccountAPIKey, credential)
}

// ClearCredential removes the stored default credential from s.
// A missing credential is not an error.
func ClearCredential(s SecretStore) error {
	err := s.Delete(ServiceName, AccountAPIKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
