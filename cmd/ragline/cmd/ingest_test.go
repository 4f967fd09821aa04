package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/pipeline"
)

// writeEngineConfig writes a config file wiring every backend into a
// temp directory, with an in-memory blob store.
func writeEngineConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`blob:
  driver: memory
  bucket: managed
vector:
  data_dir: %s
text:
  data_dir: %s
metadata:
  path: %s
logging:
  level: error
`,
		filepath.Join(dir, "vector"),
		filepath.Join(dir, "text"),
		filepath.Join(dir, "ragline.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func writeDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestThenQuery_EndToEnd(t *testing.T) {
	cfgPath := writeEngineConfig(t)
	docPath := writeDocument(t, "animals.txt",
		"The quick brown fox jumps over the lazy dog. Foxes are cunning animals.")

	out, err := execute(t, "ingest", docPath,
		"--config", cfgPath, "--tenant", "t1", "--kb", "kb1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 indexed")
	assert.Contains(t, out, "animals.txt")

	// A separate invocation reopens the persisted indexes.
	out, err = execute(t, "query", "quick brown fox",
		"--config", cfgPath, "--tenant", "t1", "--kb", "kb1")
	require.NoError(t, err)
	assert.Contains(t, out, "animals.txt")
	assert.Contains(t, out, "score:")
}

func TestIngest_DuplicateAcrossInvocations(t *testing.T) {
	cfgPath := writeEngineConfig(t)
	docPath := writeDocument(t, "report.txt", "Quarterly revenue grew by twelve percent.")

	out, err := execute(t, "ingest", docPath, "--config", cfgPath, "--kb", "kb1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 indexed")

	out, err = execute(t, "ingest", docPath, "--config", cfgPath, "--kb", "kb1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "already exists")
}

func TestQuery_JSONOutput(t *testing.T) {
	cfgPath := writeEngineConfig(t)
	docPath := writeDocument(t, "notes.txt", "Gophers burrow underground and eat roots.")

	_, err := execute(t, "ingest", docPath, "--config", cfgPath, "--kb", "kb1")
	require.NoError(t, err)

	out, err := execute(t, "query", "gophers", "--config", cfgPath, "--kb", "kb1",
		"--searcher", "lexical", "--format", "json")
	require.NoError(t, err)

	var result pipeline.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "notes.txt", result.Results[0].DocumentFilename)
	assert.NotEmpty(t, result.RunID)
}

func TestSync_RequiresBucket(t *testing.T) {
	_, err := execute(t, "sync")
	assert.ErrorContains(t, err, "bucket")
}
