package secrets

// NoopStore is the SecretStore for platforms without a supported keychain.
// Every operation fails with ErrNotSupported.
type NoopStore struct{}

func (n *NoopStore) Get(service, account string) (string, error) {
	return "", ErrNotSupported
}

func (n *NoopStore) Set(service, account, password string) error {
	return ErrNotSupported
}

func (n *NoopStore) Delete(service, account string) error {
	return ErrNotSupported
}

func (n *NoopStore) IsSupported() bool {
	return false
}
