package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidDocuments(t *testing.T) {
	var out bytes.Buffer
	code := run(&out, []string{
		"../../internal/definition/testdata/game.json",
		"../../internal/definition/testdata/game_aliases.yaml",
	}, false)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), `game.json: ok ("Project Quest", 2 phases, 3 actions, 2 events, 1 quizzes)`)
}

func TestRunInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"phases":[{"order":1}],"cards":[{"id":"a"}]}`), 0o644))

	var out bytes.Buffer
	code := run(&out, []string{path}, false)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "bad.json: invalid")
	assert.Contains(t, out.String(), "error: phases[0]: name is required")
}

func TestRunMissingFile(t *testing.T) {
	var out bytes.Buffer
	code := run(&out, []string{filepath.Join(t.TempDir(), "absent.json")}, false)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "error:")
}

func TestRunStrictFailsOnWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "gameInfo": {"title": "Warned"},
  "gameSettings": {"initialBudget": 10, "initialTime": 10},
  "phases": [{"name": "only", "order": 1, "cardLimits": {"action": 1, "event": 0, "quiz": 0}}],
  "cards": [{
    "id": "a", "type": "Action", "phases": ["only"], "title": "A", "description": "d",
    "conditions": [{"type": "presence", "cardId": "ghost", "expectedPresent": true, "effect": {"valueDelta": 1}}]
  }]
}`), 0o644))

	var out bytes.Buffer
	assert.Equal(t, 0, run(&out, []string{path}, false), out.String())
	assert.Contains(t, out.String(), "warning:")

	out.Reset()
	assert.Equal(t, 1, run(&out, []string{path}, true))
}
