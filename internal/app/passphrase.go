package app

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// passphraseEnv lets scripts supply the passphrase without a terminal.
const passphraseEnv = "FHIRSYNC_PASSPHRASE"

func passphraseFromEnvOrPrompt(prompt string) (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}
	return readPassphrase(prompt)
}

// newPassphrase asks for a passphrase twice and fails when the entries differ.
func newPassphrase() (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}
	first, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("passphrase must not be empty")
	}
	second, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

// readPassphrase prompts on stderr and reads a line from the terminal
// without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading from terminal: %w", err)
	}
	return string(b), nil
}
