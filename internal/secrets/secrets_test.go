package secrets

import (
	"errors"
	"sync"
	"testing"
)

// memStore is an in-memory SecretStore for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[service+"/"+account]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(service, account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[service+"/"+account] = password
	return nil
}

func (m *memStore) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[service+"/"+account]; !ok {
		return ErrNotFound
	}
	delete(m.data, service+"/"+account)
	return nil
}

func (m *memStore) IsSupported() bool { return true }

func TestNoopStore(t *testing.T) {
	store := &NoopStore{}
	if _, err := store.Get("service", "account"); err != ErrNotSupported {
		t.Errorf("NoopStore.Get() error = %v, want %v", err, ErrNotSupported)
	}
	if err := store.Set("service", "account", "password"); err != ErrNotSupported {
		t.Errorf("NoopStore.Set() error = %v, want %v", err, ErrNotSupported)
	}
	if err := store.Delete("service", "account"); err != ErrNotSupported {
		t.Errorf("NoopStore.Delete() error = %v, want %v", err, ErrNotSupported)
	}
	if store.IsSupported() {
		t.Error("NoopStore.IsSupported() = true, want false")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Error("Default() returned nil store")
	}
}

func TestResolve(t *testing.T) {
	stored := newMemStore()
	if err := StoreCredential(stored, "  from-keychain \n"); err != nil {
		t.Fatalf("StoreCredential() error = %v", err)
	}

	tests := []struct {
		name       string
		env        string
		store      SecretStore
		wantValue  string
		wantSource Source
	}{
		{"env wins", "from-env", stored, "from-env", SourceEnv},
		{"env trimmed", "  from-env  ", nil, "from-env", SourceEnv},
		{"keychain fallback", "", stored, "from-keychain", SourceKeychain},
		{"nothing stored", "", newMemStore(), "", SourceNone},
		{"unsupported store", "", &NoopStore{}, "", SourceNone},
		{"nil store", "", nil, "", SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string {
				if k == EnvAPIKey {
					return tt.env
				}
				return ""
			}
			got, src := Resolve(getenv, tt.store)
			if got != tt.wantValue || src != tt.wantSource {
				t.Errorf("Resolve() = (%q, %q), want (%q, %q)", got, src, tt.wantValue, tt.wantSource)
			}
		})
	}
}

func TestStoreAndClearCredential(t *testing.T) {
	s := newMemStore()

	if err := StoreCredential(s, "   "); err == nil {
		t.Error("StoreCredential() with blank value should fail")
	}
	if err := StoreCredential(s, "abc"); err != nil {
		t.Fatalf("StoreCredential() error = %v", err)
	}
	if v, _ := s.Get(ServiceName, AccountAPIKey); v != "abc" {
		t.Errorf("stored credential = %q, want abc", v)
	}

	if err := ClearCredential(s); err != nil {
		t.Fatalf("ClearCredential() error = %v", err)
	}
	if _, err := s.Get(ServiceName, AccountAPIKey); !errors.Is(err, ErrNotFound) {
		t.Errorf("credential still present after clear: %v", err)
	}
	if err := ClearCredential(s); err != nil {
		t.Errorf("ClearCredential() on missing credential = %v, want nil", err)
	}
	if err := ClearCredential(&NoopStore{}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("ClearCredential() on noop store = %v, want ErrNotSupported", err)
	}
}
