//go:build linux

package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// NativeDialogs uses zenity when a desktop session is available and falls
// back to the terminal otherwise.
func NativeDialogs() Dialogs {
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return NewTerminalDialogs()
	}
	path, err := exec.LookPath("zenity")
	if err != nil {
		return NewTerminalDialogs()
	}
	return &zenityDialogs{bin: path}
}

type zenityDialogs struct {
	bin string
}

func (z *zenityDialogs) OpenFile(ctx context.Context, title string, filters []Filter) (string, bool, error) {
	args := append([]string{"--file-selection", "--title=" + title}, zenityFilters(filters)...)
	return z.run(ctx, args)
}

func (z *zenityDialogs) SaveFile(ctx context.Context, title, defaultName string, filters []Filter) (string, bool, error) {
	args := []string{"--file-selection", "--save", "--confirm-overwrite", "--title=" + title, "--filename=" + defaultName}
	return z.run(ctx, append(args, zenityFilters(filters)...))
}

func (z *zenityDialogs) run(ctx context.Context, args []string) (string, bool, error) {
	out, err := exec.CommandContext(ctx, z.bin, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("zenity: %w", err)
	}
	path := strings.TrimRight(string(out), "\r\n")
	return path, path != "", nil
}

func zenityFilters(filters []Filter) []string {
	var args []string
	for _, f := range filters {
		var globs []string
		for _, e := range f.Extensions {
			globs = append(globs, "*."+e)
		}
		args = append(args, fmt.Sprintf("--file-filter=%s | %s", f.Name, strings.Join(globs, " ")))
	}
	return args
}
