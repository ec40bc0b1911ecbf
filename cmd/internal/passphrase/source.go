package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting on the terminal. The first result is cached.
type Source struct {
	envVar string
	lookup func(string) (string, bool)
	prompt func() (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on stdin.
func NewSource(envVar string) *Source {
	return &Source{
		envVar: strings.TrimSpace(envVar),
		lookup: os.LookupEnv,
		prompt: func() (string, error) { return promptTerminal(os.Stdin, os.Stderr) },
	}
}

// Get returns the cached passphrase or resolves it on first use. Whitespace
// only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		value, err := s.prompt()
		if err != nil {
			if s.envVar != "" {
				s.err = fmt.Errorf("keystore passphrase required; set %s or run interactively: %w", s.envVar, err)
			} else {
				s.err = err
			}
			return
		}
		if strings.TrimSpace(value) == "" {
			s.err = errors.New("keystore passphrase cannot be empty")
			return
		}
		s.value = value
	})
	return s.value, s.err
}

func promptTerminal(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available")
	}
	fmt.Fprint(out, "Enter keystore passphrase: ")
	bytes, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(bytes), nil
}
