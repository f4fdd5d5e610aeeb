package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar  string
	label   string
	confirm bool

	once  sync.Once
	value string
	err   error

	// readPassword and isTerminal are swapped in tests.
	readPassword func(fd int) ([]byte, error)
	isTerminal   func(fd int) bool
}

// NewSource checks envVar before prompting on the terminal for the keystore
// named by label.
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		label:        label,
		readPassword: term.ReadPassword,
		isTerminal:   term.IsTerminal,
	}
}

// WithConfirmation makes interactive prompts ask twice. Used when a new
// keystore is written.
func (s *Source) WithConfirmation() *Source {
	s.confirm = true
	return s
}

// Get returns the cached passphrase or resolves it on first use. Whitespace-only
// passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		fd := int(os.Stdin.Fd())
		if !s.isTerminal(fd) {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
			} else {
				s.err = fmt.Errorf("%s passphrase required and no terminal available", s.label)
			}
			return
		}

		first, err := s.prompt(fd, fmt.Sprintf("Enter %s passphrase: ", s.label))
		if err != nil {
			s.err = err
			return
		}
		if strings.TrimSpace(first) == "" {
			s.err = fmt.Errorf("%s passphrase cannot be empty", s.label)
			return
		}
		if s.confirm {
			second, err := s.prompt(fd, "Repeat passphrase: ")
			if err != nil {
				s.err = err
				return
			}
			if second != first {
				s.err = errors.New("passphrases do not match")
				return
			}
		}
		s.value = first
	})

	return s.value, s.err
}

func (s *Source) prompt(fd int, text string) (string, error) {
	fmt.Fprint(os.Stderr, text)
	raw, err := s.readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}
