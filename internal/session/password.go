package session

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// TerminalPassword prompts on w and reads a password from the terminal
// without echo.
func TerminalPassword(w io.Writer) PasswordFunc {
	return func(prompt string) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("no password given and stdin is not a terminal")
		}
		fmt.Fprint(w, prompt)
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(password), nil
	}
}
