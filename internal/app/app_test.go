package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithoutAPIKeyDegrades(t *testing.T) {
	t.Setenv("MEDQA_LLM_API_KEY", "")
	t.Setenv("MEDQA_LOGGING_LEVEL", "error")

	a, err := New(t.Context(), Options{LogOutput: "stderr"})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "stderr", a.Config.GetConfig().Logging.Output)
	assert.NotEmpty(t, a.Services.Catalog.Companies())

	classification := a.Services.Classifier.Classify(t.Context(), "What is hypertension?", nil)
	assert.True(t, classification.Failed)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("confidence:\n  threshold: 1.5\n"), 0o600))

	_, err := New(t.Context(), Options{ConfigFile: path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence threshold")
}
