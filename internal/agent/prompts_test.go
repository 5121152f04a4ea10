package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchagent/internal/llm"
)

func TestDefaultPrompts(t *testing.T) {
	prompts := DefaultPrompts()
	require.NoError(t, validatePrompts(prompts))
	assert.NotEmpty(t, prompts.Decompose.System)
	assert.NotEmpty(t, prompts.Summarize.System)
	assert.NotEmpty(t, prompts.Evaluate.System)
	assert.NotEmpty(t, prompts.Report.System)
}

func TestPromptTemplate_Messages(t *testing.T) {
	tmpl := PromptTemplate{System: " sys ", User: "Q: {{prompt}} / {{results}}"}

	messages := tmpl.Messages(map[string]string{"prompt": "{{results}}", "results": "R"})

	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, "sys", messages[0].Content)
	assert.Equal(t, "Q: {{results}} / R", messages[1].Content, "values are not expanded again")

	noSystem := PromptTemplate{User: "only {{prompt}}"}.Messages(map[string]string{"prompt": "user"})
	require.Len(t, noSystem, 1)
	assert.Equal(t, llm.RoleUser, noSystem[0].Role)
}

func TestLoadPrompts(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		prompts, err := LoadPrompts("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPrompts(), prompts)
	})

	t.Run("partial override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("report:\n  system: Write tersely.\n"), 0o600))

		prompts, err := LoadPrompts(path)
		require.NoError(t, err)
		assert.Equal(t, "Write tersely.", prompts.Report.System)
		assert.Equal(t, DefaultPrompts().Report.User, prompts.Report.User)
		assert.Equal(t, DefaultPrompts().Evaluate, prompts.Evaluate)
	})

	t.Run("missing placeholder", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("evaluate:\n  user: no placeholders here\n"), 0o600))

		_, err := LoadPrompts(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "evaluate.user must contain {{results}}")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("report: [unterminated"), 0o600))

		_, err := LoadPrompts(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPrompts(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
