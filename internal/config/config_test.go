package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "sources"), cfg.SourcesDir)
	assert.Equal(t, filepath.Join("data", "temp"), cfg.TempDir)
	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, "recursive", cfg.Chunker.Type)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 150, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, "whisper-1", cfg.Transcriber.Model)
	assert.Equal(t, filepath.Join("data", "chroma", "index.db"), cfg.IndexPath())
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}

func TestLoadAppliesProviderDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
data_dir: /srv/rag
embedder:
  type: gemini
llm:
  provider: anthropic
transcriber:
  type: gemini
vector_store:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/rag", "sources"), cfg.SourcesDir)
	assert.Equal(t, filepath.Join("/srv/rag", "temp"), cfg.TempDir)
	assert.Equal(t, filepath.Join("/srv/rag", "cache"), cfg.IngestCache.Dir)
	assert.Equal(t, filepath.Join("/srv/rag", "chroma", "index.db"), cfg.IndexPath())
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
	assert.Equal(t, "gemini-2.0-flash", cfg.Transcriber.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Transcriber.APIKeyEnv)
	assert.Nil(t, cfg.Embedder.OpenAI)
	require.NotNil(t, cfg.Embedder.Gemini)
	assert.Equal(t, "gemini-embedding-001", cfg.Embedder.Gemini.Model)
	assert.Equal(t, 768, cfg.Embedder.Gemini.Dimension)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.ElementsMatch(t, []string{"GEMINI_API_KEY", "ANTHROPIC_API_KEY"}, cfg.CredentialEnvs())
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
data_dir: /srv/rag
sources_dir: /mnt/docs
vector_store:
  type: sqlite
  sqlite:
    path: /var/lib/ragchat/index.db
llm:
  provider: gemini
  model: gemini-2.5-pro
  api_key_env: GOOGLE_KEY
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/mnt/docs", cfg.SourcesDir)
	assert.Equal(t, filepath.Join("/srv/rag", "temp"), cfg.TempDir)
	assert.Equal(t, "/var/lib/ragchat/index.db", cfg.IndexPath())
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "GOOGLE_KEY", cfg.LLM.APIKeyEnv)
	assert.Empty(t, cfg.LLM.BaseURL)
}

func TestCredentialEnvsDeduplicates(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, []string{"OPENAI_API_KEY"}, cfg.CredentialEnvs())

	cfg.Embedder.Type = "tfidf"
	cfg.Transcriber.APIKeyEnv = "WHISPER_KEY"
	assert.Equal(t, []string{"OPENAI_API_KEY", "WHISPER_KEY"}, cfg.CredentialEnvs())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.TopK)
	assert.Equal(t, cfg.LLM, loaded.LLM)
}
