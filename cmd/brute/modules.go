package brute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/tldr-it-stepankutaj/brute/internal/app"
	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/modules/execmod"
	"github.com/tldr-it-stepankutaj/brute/internal/scaffold"
)

// runListModules prints every registered module grouped by category.
func runListModules() error {
	s, err := newSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	byCat := make(map[modules.Category][]modules.Entry)
	for _, e := range s.reg.List() {
		byCat[e.Category] = append(byCat[e.Category], e)
	}

	items := pterm.LeveledList{{Level: 0, Text: fmt.Sprintf("modules (%d)", s.reg.Len())}}
	for _, c := range s.reg.Categories() {
		items = append(items, pterm.LeveledListItem{Level: 1, Text: string(c)})
		entries := byCat[c]
		if len(entries) == 0 {
			items = append(items, pterm.LeveledListItem{Level: 2, Text: pterm.Gray("(none)")})
			continue
		}
		for _, e := range entries {
			text := e.Name
			if e.Description != "" {
				text += pterm.Gray(" - " + e.Description)
			}
			items = append(items, pterm.LeveledListItem{Level: 2, Text: text})
		}
	}
	return pterm.DefaultTree.WithRoot(putils.TreeFromLeveledList(items)).Render()
}

// runNewModule writes a stub for "<category>/<name>" into the current directory.
func runNewModule(arg string) error {
	category, name, ok := strings.Cut(arg, "/")
	if !ok || category == "" || name == "" {
		return app.Invalid("new_module", "expected <category>/<name>, got %q", arg)
	}

	s, err := newSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.reg.HasCategory(modules.Category(category)) {
		known := make([]string, 0)
		for _, c := range s.reg.Categories() {
			known = append(known, string(c))
		}
		return app.Invalid("new_module", "unknown category %q (known: %s)", category, strings.Join(known, ", "))
	}
	if !modules.ValidName(name) {
		return app.Invalid("new_module", "invalid module name %q", name)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := scaffold.Write(cwd, category, name)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Module stub written to %s", path)
	pterm.Info.Printfln("Fill in the operations, set name to %q, then run: brute --add_module %s", name, path)
	return nil
}

// runAddModule registers an external manifest and copies it into the
// workspace module root so later runs discover it.
func runAddModule(path string) error {
	s, err := newSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	_, d, err := execmod.LoadExternal(path)
	if err != nil {
		return fmt.Errorf("module %s rejected: %w", path, err)
	}
	if err := s.reg.Register(d); err != nil {
		return err
	}

	dst := filepath.Join(s.ws.ModulesDir(), string(d.Category), d.Name+".yaml")
	if err := copyFile(path, dst); err != nil {
		s.reg.Remove(d.Category, d.Name)
		return fmt.Errorf("failed to install module: %w", err)
	}
	s.log.WithField("module", d.Key()).WithField("path", dst).Info("module added")
	pterm.Success.Printfln("Module %s added (%s)", d.Key(), dst)
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists", dst)
		}
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
