package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

var (
	stdin        io.Reader = os.Stdin
	isTerminal             = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword           = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// promptPassword reads a password without echo when stdin is a terminal and
// falls back to one line of input otherwise (pipes, scripts).
func promptPassword(label string) (string, error) {
	if v := os.Getenv("LEGACY_PASSWORD"); v != "" {
		return v, nil
	}
	fmt.Fprint(stderr, label)
	if isTerminal() {
		b, err := readPassword()
		fmt.Fprintln(stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y/yes is a no.
func confirm(question string) bool {
	fmt.Fprintf(stderr, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// withSpinner shows a spinner on stderr while fn runs, when attached to a terminal.
func withSpinner(suffix string, fn func() error) error {
	if !isTerminal() || outputFormat == "json" {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()
	return fn()
}
