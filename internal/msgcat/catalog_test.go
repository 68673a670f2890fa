package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedTemplatesLoad(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, key := range []string{"prompt.frame", "prompt.guidance.expert.endgame", "chess.help"} {
		if !c.Has(key) {
			t.Fatalf("expected embedded key %s", key)
		}
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
	if _, err := c.Render("prompt.frame", map[string]any{"SideUpper": "BLACK"}); err == nil {
		t.Fatalf("expected error for missing data field")
	}
	if got := c.MustRender("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("MustRender fallback = %q", got)
	}
}

func TestOverrideDirReplacesValues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("chess:\n  help: \"custom {{.Prefix}}\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("chess.help", map[string]any{"Prefix": "!"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "custom !" {
		t.Fatalf("override not applied: %q", got)
	}
}

func TestOverrideDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	body := []byte("chess:\n  help: x\n")
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_, err := New(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("chess:\n  limit: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected error for non-string leaf")
	}
}
