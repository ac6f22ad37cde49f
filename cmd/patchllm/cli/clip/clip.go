// Package clip wraps the system clipboard behind an interface so command
// handlers can be tested without a display server.
package clip

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnavailable indicates no usable clipboard on this system.
var ErrUnavailable = errors.New("clipboard unavailable")

// Board reads and writes the clipboard.
type Board interface {
	Read() (string, error)
	Write(text string) error
}

// System is the real clipboard.
type System struct{}

func (System) Read() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnavailable
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

func (System) Write(text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
