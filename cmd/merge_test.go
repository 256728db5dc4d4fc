package cmd_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/serroba/online-docs/cmd"
	"github.com/serroba/online-docs/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conflictJSON = `{
  "docId": "doc1",
  "base": "abcdef",
  "operations": [
    {"id": "a1", "opType": "delete", "position": 1, "length": 2, "authorId": "alice", "timestamp": "2026-01-01T10:00:00Z"},
    {"id": "b1", "opType": "insert", "position": 2, "content": "Z", "authorId": "bob", "timestamp": "2026-01-01T10:00:00Z"}
  ]
}`

func writeConflict(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "conflict.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func run(args ...string) (string, error) {
	var out bytes.Buffer

	root := cmd.NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

func TestMergeCommand(t *testing.T) {
	t.Parallel()

	out, err := run("merge", writeConflict(t, conflictJSON))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "concurrent_edit conflict (medium severity) between alice, bob", lines[0])
	require.Len(t, lines, 7, "header, blank line, column titles and four strategies")
	assert.Contains(t, lines[3], "intelligent_merge")
	assert.Contains(t, lines[3], `"aZdef"`)
}

func TestMergeCommand_JSON(t *testing.T) {
	t.Parallel()

	out, err := run("merge", "--json", writeConflict(t, conflictJSON))
	require.NoError(t, err)

	var payload ws.ConflictPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))

	assert.Equal(t, "doc1", payload.DocID)
	assert.Equal(t, "medium", payload.Severity)
	require.Len(t, payload.Strategies, 4)

	for i := 1; i < len(payload.Strategies); i++ {
		if payload.Strategies[i].Confidence > payload.Strategies[i-1].Confidence {
			t.Errorf("strategies not ranked: %v", payload.Strategies)
		}
	}
}

func TestMergeCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{"},
		{"no operations", `{"base": "abc"}`},
		{"unknown operation type", `{"base": "abc", "operations": [{"opType": "move"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := run("merge", writeConflict(t, tt.content))
			if err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := run("merge", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
