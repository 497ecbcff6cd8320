package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreFetchDeleteRoundTrip(t *testing.T) {
	t.Setenv("CHATFUSE_SECRETS_DIR", t.TempDir())

	require.NoError(t, StoreProviderKey("OpenAI", "sk-secret-123"))

	// lookup is case-insensitive
	got, err := FetchProviderKey("openai")
	require.NoError(t, err)
	require.Equal(t, "sk-secret-123", got)

	require.NoError(t, DeleteProviderKey("openai"))
	_, err = FetchProviderKey("openai")
	require.Error(t, err)
}

func TestStoreOverwritesExistingKey(t *testing.T) {
	t.Setenv("CHATFUSE_SECRETS_DIR", t.TempDir())

	require.NoError(t, StoreProviderKey("ollama", "old"))
	require.NoError(t, StoreProviderKey("ollama", "new"))

	got, err := FetchProviderKey("ollama")
	require.NoError(t, err)
	require.Equal(t, "new", got)
}

func TestEmptyProviderRejected(t *testing.T) {
	t.Setenv("CHATFUSE_SECRETS_DIR", t.TempDir())

	require.Error(t, StoreProviderKey("  ", "x"))
	_, err := FetchProviderKey("")
	require.Error(t, err)
}
