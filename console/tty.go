package console

import (
	"errors"
	"os"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when raw mode is requested on a non-terminal.
var ErrNotTerminal = errors.New("console input is not a terminal")

// MakeRaw puts f into raw mode and returns the restore function.
func MakeRaw(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// WindowSize returns a size reporter for the terminal behind f.
func WindowSize(f *os.File) func() (int, int, error) {
	fd := int(f.Fd())
	return func() (int, int, error) {
		return term.GetSize(fd)
	}
}
