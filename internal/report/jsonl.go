package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

// ErrCorruptRecord marks a findings file that stops at an undecodable
// record, usually the half-written last line of a killed run.
var ErrCorruptRecord = errors.New("corrupt findings record")

// Record is one line of a JSONL findings file.
type Record struct {
	Type    string                `json:"type"`
	Attempt *engine.AttemptResult `json:"attempt,omitempty"`
	Status  *engine.RunStatus     `json:"status,omitempty"`
}

// JSONL appends one JSON object per event to a file. Write errors are
// sticky and reported by Err and Close.
type JSONL struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
	err error
}

// OpenJSONL creates (or appends to) path, making parent directories.
func OpenJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open findings file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &JSONL{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (j *JSONL) write(rec Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	if err := j.enc.Encode(rec); err != nil {
		j.err = err
	}
}

func (j *JSONL) Attempt(res engine.AttemptResult) {
	j.write(Record{Type: "attempt", Attempt: &res})
}

// Finish writes the final status and flushes so the file is complete even
// if Close is never reached.
func (j *JSONL) Finish(s engine.RunStatus) {
	j.write(Record{Type: "status", Status: &s})
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		j.err = j.w.Flush()
	}
}

// Err returns the first write error.
func (j *JSONL) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		j.err = j.w.Flush()
	}
	cerr := j.f.Close()
	if j.err != nil {
		return j.err
	}
	return cerr
}

// ReadJSONL loads every record of a findings file. On a decode error it
// returns the records read so far with an error wrapping ErrCorruptRecord.
func ReadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return out, fmt.Errorf("decode %s: %w: %w", path, ErrCorruptRecord, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
