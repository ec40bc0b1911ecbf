package passphrase

import (
	"errors"
	"strings"
	"testing"
)

func TestEnvironmentWinsOverPrompt(t *testing.T) {
	prompted := false
	s := &Source{
		envVar: "KALELEND_KEYSTORE_PASS",
		lookup: func(string) (string, bool) { return "hunter22", true },
		prompt: func() (string, error) { prompted = true; return "", nil },
	}
	got, err := s.Get()
	if err != nil || got != "hunter22" {
		t.Fatalf("unexpected result %q err=%v", got, err)
	}
	if prompted {
		t.Fatalf("prompt should not run when the variable is set")
	}
}

func TestEmptyEnvironmentRejected(t *testing.T) {
	s := &Source{
		envVar: "KALELEND_KEYSTORE_PASS",
		lookup: func(string) (string, bool) { return "  ", true },
	}
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank variable")
	}
}

func TestPromptResultCached(t *testing.T) {
	calls := 0
	s := &Source{
		lookup: func(string) (string, bool) { return "", false },
		prompt: func() (string, error) { calls++; return "secret", nil },
	}
	for i := 0; i < 2; i++ {
		if got, err := s.Get(); err != nil || got != "secret" {
			t.Fatalf("unexpected result %q err=%v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one prompt, got %d", calls)
	}
}

func TestPromptFailureMentionsVariable(t *testing.T) {
	s := &Source{
		envVar: "KALELEND_KEYSTORE_PASS",
		lookup: func(string) (string, bool) { return "", false },
		prompt: func() (string, error) { return "", errors.New("no terminal available") },
	}
	_, err := s.Get()
	if err == nil {
		t.Fatalf("expected error")
	}
	if want := "KALELEND_KEYSTORE_PASS"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q should mention %s", err, want)
	}
}

