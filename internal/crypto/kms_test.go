package crypto

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS "encrypts" by prefixing the binding, and refuses to decrypt when the
// encryption context differs, like the real service.
type fakeKMS struct{}

func (fakeKMS) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	blob := append([]byte(in.EncryptionContext[contextKey]+"|"), in.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob}, nil
}

func (fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	prefix := []byte(in.EncryptionContext[contextKey] + "|")
	if len(in.CiphertextBlob) < len(prefix) || string(in.CiphertextBlob[:len(prefix)]) != string(prefix) {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob[len(prefix):]}, nil
}

func TestKMSService_SealOpen(t *testing.T) {
	s := NewKMSService(fakeKMS{}, "alias/test")
	ctx := context.Background()

	sealed, err := s.Seal(ctx, "sess-1", []byte(`{"accessToken":"a"}`))
	require.NoError(t, err)

	plain, err := s.Open(ctx, "sess-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"accessToken":"a"}`, string(plain))

	_, err = s.Open(ctx, "sess-2", sealed)
	require.Error(t, err)
}

func TestKMSService_Open_BadBase64(t *testing.T) {
	s := NewKMSService(fakeKMS{}, "alias/test")

	_, err := s.Open(context.Background(), "sess-1", "%%%")
	require.Error(t, err)
}

func TestMockEncryptor_Binding(t *testing.T) {
	m := NewMockEncryptor()
	ctx := context.Background()

	sealed, err := m.Seal(ctx, "sess-1", []byte("payload"))
	require.NoError(t, err)

	plain, err := m.Open(ctx, "sess-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))

	_, err = m.Open(ctx, "other", sealed)
	require.Error(t, err)
}
