package cache

import (
	"context"
	"errors"
	"testing"
)

func TestKeyDistinguishesInputs(t *testing.T) {
	base := Key("gpt-4o", "prompt", "content")
	if Key("gpt-4o", "prompt", "content") != base {
		t.Error("identical inputs produced different keys")
	}
	for name, k := range map[string]string{
		"model":  Key("gpt-4", "prompt", "content"),
		"system": Key("gpt-4o", "other", "content"),
		"user":   Key("gpt-4o", "prompt", "other"),
		// Length prefixes keep boundary shifts from colliding.
		"boundary": Key("gpt-4o", "promptc", "ontent"),
	} {
		if k == base {
			t.Errorf("changed %s but key unchanged", name)
		}
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := Key("m", "s", "u")
	if _, ok := c.Get(key); ok {
		t.Fatal("Get() hit on empty cache")
	}
	if err := c.Put(key, "response"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok := c.Get(key)
	if !ok || got != "response" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
}

type countingAnalyzer struct {
	calls   int
	content string
	err     error
}

func (a *countingAnalyzer) Analyze(ctx context.Context, system, user string, accept func(string) error) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	if accept != nil {
		if err := accept(a.content); err != nil {
			return "", err
		}
	}
	return a.content, nil
}

func TestWrapCachesResponses(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	inner := &countingAnalyzer{content: `{"findings": [], "summary": "ok"}`}
	a := Wrap(inner, c, "gpt-4o", nil)

	for i := 0; i < 3; i++ {
		got, err := a.Analyze(context.Background(), "sys", "usr", nil)
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if got != inner.content {
			t.Errorf("content = %q", got)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestWrapSkipsInvalidEntries(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := Key("gpt-4o", "sys", "usr")
	if err := c.Put(key, "stale garbage"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	inner := &countingAnalyzer{content: "fresh"}
	a := Wrap(inner, c, "gpt-4o", nil)

	got, err := a.Analyze(context.Background(), "sys", "usr", func(content string) error {
		if content == "stale garbage" {
			return errors.New("invalid")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got != "fresh" || inner.calls != 1 {
		t.Errorf("got %q, inner calls = %d", got, inner.calls)
	}
}

func TestWrapDoesNotCacheFailures(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	inner := &countingAnalyzer{err: errors.New("boom")}
	a := Wrap(inner, c, "m", nil)

	if _, err := a.Analyze(context.Background(), "s", "u", nil); err == nil {
		t.Fatal("Analyze() error = nil, want failure")
	}
	if _, ok := c.Get(Key("m", "s", "u")); ok {
		t.Error("failed dispatch left a cache entry")
	}
}
