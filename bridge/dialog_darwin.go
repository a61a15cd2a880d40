//go:build darwin

package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

func NativeDialogs() Dialogs {
	return osascriptDialogs{}
}

type osascriptDialogs struct{}

func (osascriptDialogs) OpenFile(ctx context.Context, title string, filters []Filter) (string, bool, error) {
	script := fmt.Sprintf(`POSIX path of (choose file with prompt %s`, quote(title))
	var types []string
	for _, f := range filters {
		for _, e := range f.Extensions {
			types = append(types, quote(e))
		}
	}
	if len(types) > 0 {
		script += " of type {" + strings.Join(types, ", ") + "}"
	}
	return runOsascript(ctx, script+")")
}

func (osascriptDialogs) SaveFile(ctx context.Context, title, defaultName string, _ []Filter) (string, bool, error) {
	script := fmt.Sprintf(`POSIX path of (choose file name with prompt %s default name %s)`, quote(title), quote(defaultName))
	return runOsascript(ctx, script)
}

func runOsascript(ctx context.Context, script string) (string, bool, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		// -128 "User canceled" exits 1.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("osascript: %w", err)
	}
	path := strings.TrimSpace(string(out))
	return path, path != "", nil
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
