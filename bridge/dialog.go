package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

type Filter struct {
	Name       string
	Extensions []string
}

func (f Filter) matches(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range f.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Dialogs is the native file-picker capability. ok is false when the user
// cancelled.
type Dialogs interface {
	OpenFile(ctx context.Context, title string, filters []Filter) (path string, ok bool, err error)
	SaveFile(ctx context.Context, title, defaultName string, filters []Filter) (path string, ok bool, err error)
}

// TerminalDialogs asks for paths on the terminal. An empty answer cancels.
type TerminalDialogs struct {
	In  io.Reader
	Out io.Writer
	// Dir resolves relative answers; empty means the working directory.
	Dir string
}

func NewTerminalDialogs() *TerminalDialogs {
	return &TerminalDialogs{In: os.Stdin, Out: os.Stdout}
}

func (t *TerminalDialogs) OpenFile(_ context.Context, title string, filters []Filter) (string, bool, error) {
	answer, err := t.prompt(fmt.Sprintf("%s (%s, empty to cancel): ", title, describe(filters)))
	if err != nil || answer == "" {
		return "", false, err
	}
	path, err := t.resolve(answer)
	if err != nil {
		return "", false, err
	}
	if !anyMatch(filters, path) {
		return "", false, fmt.Errorf("%s is not a %s file", filepath.Base(path), describe(filters))
	}
	return path, true, nil
}

func (t *TerminalDialogs) SaveFile(_ context.Context, title, defaultName string, filters []Filter) (string, bool, error) {
	answer, err := t.prompt(fmt.Sprintf("%s [%s] (directory or file, empty to cancel): ", title, defaultName))
	if err != nil || answer == "" {
		return "", false, err
	}
	path, err := t.resolve(answer)
	if err != nil {
		return "", false, err
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, defaultName)
	}
	return path, true, nil
}

func (t *TerminalDialogs) resolve(answer string) (string, error) {
	if answer == "~" || strings.HasPrefix(answer, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		answer = filepath.Join(home, strings.TrimPrefix(answer, "~"))
	}
	if filepath.IsAbs(answer) {
		return filepath.Clean(answer), nil
	}
	dir := t.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	return filepath.Join(dir, answer), nil
}

// prompt reads one line, with line editing when In is a terminal.
func (t *TerminalDialogs) prompt(p string) (string, error) {
	if f, ok := t.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return "", fmt.Errorf("setting raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)

		tm := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{t.In, t.Out}, p)
		line, err := tm.ReadLine()
		if err == io.EOF {
			return "", nil
		}
		return strings.TrimSpace(line), err
	}

	fmt.Fprint(t.Out, p)
	line, err := bufio.NewReader(t.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func describe(filters []Filter) string {
	var exts []string
	for _, f := range filters {
		exts = append(exts, f.Extensions...)
	}
	return strings.Join(exts, "/")
}

func anyMatch(filters []Filter, path string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.matches(path) {
			return true
		}
	}
	return false
}
