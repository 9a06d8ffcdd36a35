package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

// Summary aggregates the final status of every run recorded in a findings
// directory.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Runs        []engine.RunStatus `json:"runs"`
	Found       int                `json:"found"`
	Exhausted   int                `json:"exhausted"`
	Aborted     int                `json:"aborted"`
	Incomplete  []string           `json:"incomplete,omitempty"`
}

// Collect reads every run-*.jsonl file under dir. Files without a final
// status record (a crashed or killed run) are listed as incomplete. A file
// cut off mid-record keeps the records before the cut.
func Collect(dir string, now time.Time) (*Summary, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "run-*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	s := &Summary{GeneratedAt: now}
	for _, p := range paths {
		recs, err := ReadJSONL(p)
		if err != nil && !errors.Is(err, ErrCorruptRecord) {
			return nil, err
		}
		var final *engine.RunStatus
		for _, r := range recs {
			if r.Type == "status" && r.Status != nil {
				final = r.Status
			}
		}
		if final == nil {
			s.Incomplete = append(s.Incomplete, filepath.Base(p))
			continue
		}
		s.Runs = append(s.Runs, *final)
		switch final.Outcome {
		case engine.RunCredentialFound:
			s.Found++
		case engine.RunExhausted:
			s.Exhausted++
		default:
			s.Aborted++
		}
	}
	sort.SliceStable(s.Runs, func(i, j int) bool { return s.Runs[i].Started.Before(s.Runs[j].Started) })
	return s, nil
}

// ExportJSON writes the summary as indented JSON.
func (s *Summary) ExportJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return err
	}
	return bw.Flush()
}

var markdownSummary = template.Must(template.New("summary").Parse(`# Credential test summary

**Generated:** {{ .GeneratedAt.Format "2006-01-02 15:04:05" }}
**Runs:** {{ len .Runs }} (found {{ .Found }}, exhausted {{ .Exhausted }}, aborted {{ .Aborted }})

| Started | Run | Module | Outcome | Reason | Attempts | Credential |
|---|---|---|---|---|---|---|
{{ range .Runs }}| {{ .Started.Format "2006-01-02 15:04:05" }} | {{ .RunID }} | {{ .Module }} | {{ .Outcome }} | {{ .Reason }} | {{ .Attempts }} | {{ if .Found }}{{ .Found.Identifier }}:{{ .Found.Guess }}{{ end }} |
{{ end }}{{ if .Incomplete }}
## Incomplete runs
{{ range .Incomplete }}
- {{ . }}{{ end }}
{{ end }}`))

// ExportMarkdown writes the summary as a Markdown table.
func (s *Summary) ExportMarkdown(w io.Writer) error {
	if err := markdownSummary.Execute(w, s); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}

// WriteFile exports the summary to path in format "md" or "json".
func (s *Summary) WriteFile(path, format string) error {
	export := s.ExportMarkdown
	switch format {
	case "json":
		export = s.ExportJSON
	case "md", "":
	default:
		return fmt.Errorf("unsupported format %q (md|json)", format)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export(f); err != nil {
		return err
	}
	return f.Close()
}
