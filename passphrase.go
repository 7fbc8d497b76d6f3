package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

const passphraseEnvVar = "TERMINUS_MASTER_PASSPHRASE"

// obtainPassphrase returns the configured passphrase, or prompts for it on
// the terminal. A fresh install asks twice.
func obtainPassphrase(configured string, fresh bool) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	passphrase, err := readPassword("Master passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}
	if !fresh {
		return passphrase, nil
	}

	confirm, err := readPassword("Confirm master passphrase: ")
	if err != nil {
		zeroBytes(passphrase)
		return nil, err
	}
	defer zeroBytes(confirm)
	if !bytes.Equal(passphrase, confirm) {
		zeroBytes(passphrase)
		return nil, errors.New("passphrases do not match")
	}
	return passphrase, nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	var passphrase []byte
	var err error
	if term.IsTerminal(int(syscall.Stdin)) {
		passphrase, err = term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
	} else {
		// STDIN is piped, try the controlling terminal
		tty, ttyErr := os.Open("/dev/tty")
		if ttyErr != nil {
			return nil, fmt.Errorf("cannot read passphrase: STDIN is piped and /dev/tty is not available. Set %s", passphraseEnvVar)
		}
		defer tty.Close()
		passphrase, err = term.ReadPassword(int(tty.Fd()))
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return passphrase, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
