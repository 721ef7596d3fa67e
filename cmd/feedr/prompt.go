package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var errPasswordMismatch = errors.New("passwords do not match")

// readPassword prompts on stderr and reads a line from the terminal without
// echo. When stdin is not a terminal the line is read as is.
func readPassword(prompt string) (pw string, err error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		var b []byte
		b, err = term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if chk.E(err) {
			return
		}
		return string(b), nil
	}
	if pw, err = stdin.ReadString('\n'); err != nil && pw == "" {
		return
	}
	return strings.TrimRight(pw, "\r\n"), nil
}

var stdin = bufio.NewReader(os.Stdin)

// confirm asks a yes or no question on stderr and reads the answer from
// stdin. Only y or yes counts as agreement.
func confirm(prompt string) (ok bool, err error) {
	fmt.Fprint(os.Stderr, prompt)
	var answer string
	if answer, err = stdin.ReadString('\n'); err != nil && answer == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// newPassword asks for a password twice.
func newPassword() (pw string, err error) {
	if pw, err = readPassword("password to encrypt the key (empty for none): "); err != nil {
		return
	}
	var confirm string
	if confirm, err = readPassword("repeat password: "); err != nil {
		return
	}
	if pw != confirm {
		return "", errPasswordMismatch
	}
	return
}

// password returns the --password flag, or prompts for it.
func password(flag string, set bool) (string, error) {
	if set {
		return flag, nil
	}
	return readPassword("password: ")
}
