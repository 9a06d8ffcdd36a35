package wordlist

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxLineSize bounds a single guess, not the wordlist.
const maxLineSize = 1024 * 1024

// ErrNotFound is returned when the wordlist path does not exist.
var ErrNotFound = errors.New("wordlist not found")

// NotFoundError carries the missing path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("wordlist not found: %s", e.Path) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Source is an ordered, lazily read sequence of guesses. It follows the
// bufio.Scanner shape: call Next until it returns false, then check Err.
type Source interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Open returns a lazy Source over path. A regular file is read line by line.
// A directory contributes every regular file directly inside it, in directory
// listing order; subdirectories are not descended into.
func Open(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat wordlist %s: %w", path, err)
	}

	if !info.IsDir() {
		return &fileSource{files: []string{path}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read wordlist dir %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if e.Type()&fs.ModeSymlink != 0 {
			if target, err := os.Stat(full); err != nil || !target.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		files = append(files, full)
	}
	return &fileSource{files: files}, nil
}

// Load materializes the whole wordlist. Prefer Open for large inputs.
func Load(path string) ([]string, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	return Collect(src)
}

// Collect drains src into a slice.
func Collect(src Source) ([]string, error) {
	var words []string
	for src.Next() {
		words = append(words, src.Text())
	}
	return words, src.Err()
}

// fileSource walks a list of files, keeping at most one open.
type fileSource struct {
	files   []string
	idx     int
	f       *os.File
	scanner *bufio.Scanner
	text    string
	err     error
}

func (s *fileSource) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		if s.scanner == nil {
			if s.idx >= len(s.files) {
				return false
			}
			f, err := os.Open(s.files[s.idx])
			if err != nil {
				s.err = fmt.Errorf("open wordlist file %s: %w", s.files[s.idx], err)
				return false
			}
			s.idx++
			s.f = f
			s.scanner = bufio.NewScanner(f)
			s.scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		}

		if s.scanner.Scan() {
			// Scanner drops "\n"; a trailing "\r" from CRLF files is stripped here.
			s.text = strings.TrimSuffix(s.scanner.Text(), "\r")
			return true
		}
		if err := s.scanner.Err(); err != nil {
			s.err = fmt.Errorf("read wordlist file %s: %w", s.f.Name(), err)
			_ = s.closeCurrent()
			return false
		}
		if err := s.closeCurrent(); err != nil {
			s.err = err
			return false
		}
	}
}

func (s *fileSource) Text() string { return s.text }

func (s *fileSource) Err() error { return s.err }

func (s *fileSource) Close() error {
	s.idx = len(s.files)
	return s.closeCurrent()
}

func (s *fileSource) closeCurrent() error {
	s.scanner = nil
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// FromSlice wraps an in-memory list of guesses.
func FromSlice(words []string) Source {
	return &sliceSource{words: words, idx: -1}
}

type sliceSource struct {
	words []string
	idx   int
}

func (s *sliceSource) Next() bool {
	if s.idx+1 >= len(s.words) {
		s.idx = len(s.words)
		return false
	}
	s.idx++
	return true
}

func (s *sliceSource) Text() string {
	if s.idx < 0 || s.idx >= len(s.words) {
		return ""
	}
	return s.words[s.idx]
}

func (s *sliceSource) Err() error   { return nil }
func (s *sliceSource) Close() error { return nil }

// Filter yields only the guesses for which keep returns true.
func Filter(src Source, keep func(string) bool) Source {
	return &filterSource{Source: src, keep: keep}
}

type filterSource struct {
	Source
	keep func(string) bool
}

func (f *filterSource) Next() bool {
	for f.Source.Next() {
		if f.keep(f.Source.Text()) {
			return true
		}
	}
	return false
}

// NonBlank is a Filter predicate dropping empty and whitespace-only lines.
func NonBlank(s string) bool { return strings.TrimSpace(s) != "" }
