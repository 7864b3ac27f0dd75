package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

func TestAskCmd_Use(t *testing.T) {
	assert.Equal(t, "ask [question]", askCmd.Use)
}

func TestAskCmd_RequiresExactlyOneArg(t *testing.T) {
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"ask"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestAskCmd_HasScopeFlags(t *testing.T) {
	for _, name := range []string{"limit", "json", "user", "project", "session", "long-term", "topics", "entities"} {
		assert.NotNil(t, askCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
	assert.Equal(t, "8", askCmd.Flags().Lookup("limit").DefValue)
}

func TestAskCmd_PrintsAnswer(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "does the cache retry on timeout"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "The cache layer retries on timeout")
}

func TestAskCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "--json", "does the cache retry on timeout"})
	defer rootCmd.SetArgs(nil)
	defer func() { askJSON = false }()

	err := rootCmd.Execute()
	require.NoError(t, err)

	var answer domain.Answer
	require.NoError(t, json.Unmarshal(buf.Bytes(), &answer))
	assert.Equal(t, "does the cache retry on timeout", answer.Question)
	assert.NotEmpty(t, answer.Text)
}

func TestAskCmd_ErrorsWhenNotConfigured(t *testing.T) {
	oldAsker := asker
	asker = nil
	defer func() { asker = oldAsker }()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"ask", "anything"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
