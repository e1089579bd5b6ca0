package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("CODE_READER_PORT", "4100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.URI)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Embeddings.BaseURL)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "code_reader", cfg.Store.Database)
}

func TestLoad_RequiresStoreURI(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("MONGODB_ATLAS_URI", "")
	t.Setenv("MONGODB_LOCAL_URI", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestCandidateURIs_Priority(t *testing.T) {
	t.Run("single URI wins over the pair", func(t *testing.T) {
		s := StoreConfig{URI: "mongodb://one", AtlasURI: "mongodb://atlas", LocalURI: "mongodb://local"}
		candidates := s.CandidateURIs()
		require.Len(t, candidates, 1)
		assert.Equal(t, "uri", candidates[0].Label)
	})

	t.Run("atlas before local", func(t *testing.T) {
		s := StoreConfig{AtlasURI: "mongodb://atlas", LocalURI: "mongodb://local"}
		candidates := s.CandidateURIs()
		require.Len(t, candidates, 2)
		assert.Equal(t, "atlas", candidates[0].Label)
		assert.Equal(t, "local", candidates[1].Label)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, StoreConfig{}.CandidateURIs())
	})
}
