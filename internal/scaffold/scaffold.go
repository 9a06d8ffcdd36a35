// Package scaffold writes module manifest stubs for operators to fill in.
package scaffold

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed module.yaml.tmpl
var stubTemplate string

var stub = template.Must(template.New("stub").Parse(stubTemplate))

// ErrExists is returned when the target file is already present.
var ErrExists = errors.New("module file already exists")

type stubData struct {
	Category string
	Name     string
	File     string
}

// Write creates <dir>/<name>.yaml from the stub template and returns its path.
// It never overwrites an existing file.
func Write(dir, category, name string) (string, error) {
	if category == "" || name == "" {
		return "", fmt.Errorf("category and name are required")
	}
	file := name + ".yaml"
	path := filepath.Join(dir, file)

	var buf bytes.Buffer
	if err := stub.Execute(&buf, stubData{Category: category, Name: name, File: file}); err != nil {
		return "", fmt.Errorf("render module stub: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%s: %w", path, ErrExists)
		}
		return "", err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
