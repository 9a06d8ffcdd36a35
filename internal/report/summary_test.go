package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

func writeRun(t *testing.T, dir string, s engine.RunStatus, finish bool) {
	t.Helper()
	j, err := OpenJSONL(filepath.Join(dir, "run-"+s.RunID+".jsonl"))
	require.NoError(t, err)
	j.Attempt(sampleAttempt(1, engine.OutcomeFailure))
	if finish {
		j.Finish(s)
	}
	require.NoError(t, j.Close())
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	found := sampleStatus()
	found.RunID = "b"

	exhausted := sampleStatus()
	exhausted.RunID = "a"
	exhausted.Outcome = engine.RunExhausted
	exhausted.Found = nil
	exhausted.Started = found.Started.Add(time.Hour)

	writeRun(t, dir, found, true)
	writeRun(t, dir, exhausted, true)
	writeRun(t, dir, engine.RunStatus{RunID: "c"}, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	s, err := Collect(dir, time.Now())
	require.NoError(t, err)

	require.Len(t, s.Runs, 2)
	assert.Equal(t, "b", s.Runs[0].RunID, "runs are ordered by start time")
	assert.Equal(t, 1, s.Found)
	assert.Equal(t, 1, s.Exhausted)
	assert.Equal(t, []string{"run-c.jsonl"}, s.Incomplete)

	var md bytes.Buffer
	require.NoError(t, s.ExportMarkdown(&md))
	assert.Contains(t, md.String(), "| admin:hunter2 |")
	assert.Contains(t, md.String(), "- run-c.jsonl")
}

func TestCollect_TruncatedRunIsIncomplete(t *testing.T) {
	dir := t.TempDir()
	done := sampleStatus()
	done.RunID = "a"
	writeRun(t, dir, done, true)

	writeRun(t, dir, engine.RunStatus{RunID: "b"}, false)
	f, err := os.OpenFile(filepath.Join(dir, "run-b.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"attempt","attempt":{"run_id":"b","se`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err := ReadJSONL(filepath.Join(dir, "run-b.jsonl"))
	assert.ErrorIs(t, err, ErrCorruptRecord)
	assert.Len(t, recs, 1, "records before the cut survive")

	s, err := Collect(dir, time.Now())
	require.NoError(t, err)
	require.Len(t, s.Runs, 1)
	assert.Equal(t, "a", s.Runs[0].RunID)
	assert.Equal(t, []string{"run-b.jsonl"}, s.Incomplete)
}

func TestCollect_EmptyDir(t *testing.T) {
	s, err := Collect(t.TempDir(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, s.Runs)
}

func TestSummary_WriteFile(t *testing.T) {
	s := &Summary{Found: 1}
	path := filepath.Join(t.TempDir(), "reports", "summary.json")
	require.NoError(t, s.WriteFile(path, "json"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"found": 1`)

	assert.Error(t, s.WriteFile(path, "html"))
}
