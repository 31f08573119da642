package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeExport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func collect(t *testing.T, src Source, path string) ([]Record, error) {
	t.Helper()
	var out []Record
	for rec, err := range src.Records(context.Background(), path) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"chatgpt", "anthropic", "grok", " ChatGPT "} {
		src, err := Lookup(name)
		if err != nil {
			t.Fatalf("lookup %q: %v", name, err)
		}
		if src == nil {
			t.Fatalf("lookup %q returned nil source", name)
		}
	}
	if _, err := Lookup("slack"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFormats(t *testing.T) {
	got := Formats()
	want := []string{"anthropic", "chatgpt", "grok"}
	if len(got) != len(want) {
		t.Fatalf("formats=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("formats=%v, want %v", got, want)
		}
	}
}

func TestMapSender(t *testing.T) {
	cases := map[string]string{
		"human":     "user",
		"Human":     "user",
		"assistant": "assistant",
		"ASSISTANT": "assistant",
		"system":    "system",
		"":          "unknown",
	}
	for in, want := range cases {
		if got := mapSender(in); got != want {
			t.Errorf("mapSender(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestParseISOTime(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"2025-10-17T06:49:48.5Z", 1760683788.5, true},
		{"2025-10-17T06:49:48Z", 1760683788, true},
		{"2025-10-17T08:49:48+02:00", 1760683788, true},
		{"2025-10-17T06:49:48", 1760683788, true},
		{"2025-10-17 06:49:48", 1760683788, true},
		{"", 0, false},
		{"yesterday", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseISOTime(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseISOTime(%q)=(%v,%v), want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMissingFile(t *testing.T) {
	_, err := collect(t, ChatGPT{}, filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatalf("missing file should not be reported as malformed: %v", err)
	}
}
