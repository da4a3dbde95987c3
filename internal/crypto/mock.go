package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// MockEncryptor implements Encryptor for local development (no KMS required).
// It is not confidential: the payload is only base64 encoded, but the binding
// is still enforced so tests exercise the same failure modes as KMS.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Seal(_ context.Context, binding string, plaintext []byte) (string, error) {
	return "mock:" + binding + ":" + base64.RawURLEncoding.EncodeToString(plaintext), nil
}

func (m *MockEncryptor) Open(_ context.Context, binding string, ciphertext string) ([]byte, error) {
	rest, ok := strings.CutPrefix(ciphertext, "mock:"+binding+":")
	if !ok {
		return nil, fmt.Errorf("failed to decrypt data: binding mismatch")
	}
	plaintext, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	return plaintext, nil
}
