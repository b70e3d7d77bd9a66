package sync

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for input during an interactive run
type Prompter interface {
	// Ask prints label and returns the trimmed answer
	Ask(label string) (string, error)
	// Confirm asks a yes/no question; anything but y/yes is no
	Confirm(question string) (bool, error)
}

// TerminalPrompter reads answers line by line from in
type TerminalPrompter struct {
	in     *bufio.Reader
	out    io.Writer
	secret *os.File
}

// NewTerminalPrompter creates a prompter reading from in and writing
// questions to out. When in is a terminal, Password hides the input.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	p := &TerminalPrompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.secret = f
	}
	return p
}

func (p *TerminalPrompter) Ask(label string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	answer, err := p.Ask(question + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Password asks for a secret without echoing it
func (p *TerminalPrompter) Password(label string) (string, error) {
	if p.secret == nil {
		return p.Ask(label)
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(int(p.secret.Fd()))
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// askRequired repeats the question until the answer is not empty
func askRequired(p Prompter, label string) (string, error) {
	for {
		answer, err := p.Ask(label)
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
	}
}

// askInt repeats the question until the answer is an integer
func askInt(p Prompter, label string) (int, error) {
	for {
		answer, err := askRequired(p, label)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil {
			return n, nil
		}
	}
}
