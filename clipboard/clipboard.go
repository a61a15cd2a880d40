// Package clipboard copies exported feedback so it can be pasted elsewhere.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no clipboard utility is installed
// (xclip, xsel or wl-copy on Linux).
var ErrUnavailable = errors.New("clipboard unavailable: install xclip, xsel or wl-clipboard")

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}
