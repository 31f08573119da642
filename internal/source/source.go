// Package source turns exported conversation archives into normalized message records.
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
)

var (
	// ErrMalformed reports an export that is not structurally valid for its format.
	ErrMalformed = errors.New("malformed export")
	// ErrUnknownFormat reports a format name with no registered adapter.
	ErrUnknownFormat = errors.New("unknown export format")
)

// Record is one message as extracted from an export.
// CreatedAt is seconds since the epoch; zero means the timestamp is unknown.
type Record struct {
	ThreadID    string  `json:"thread_id"`
	ThreadTitle string  `json:"thread_title"`
	Role        string  `json:"role"`
	Content     string  `json:"content"`
	CreatedAt   float64 `json:"created_at"`
}

// Source extracts records from one platform's export format.
type Source interface {
	Format() string
	// Records streams the export at path. A structural problem is yielded as an
	// error wrapping ErrMalformed, after which the sequence stops.
	Records(ctx context.Context, path string) iter.Seq2[Record, error]
}

var registry = map[string]Source{}

// Register adds a source under its format name. It panics on duplicates.
func Register(s Source) {
	name := strings.ToLower(s.Format())
	if _, ok := registry[name]; ok {
		panic("source: duplicate format " + name)
	}
	registry[name] = s
}

// Lookup returns the source registered for format.
func Lookup(format string) (Source, error) {
	s, ok := registry[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
	return s, nil
}

// Formats lists registered format names in sorted order.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(ChatGPT{})
	Register(Anthropic{})
	Register(Grok{})
}

func malformed(format, msg string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", format, ErrMalformed, fmt.Sprintf(msg, args...))
}

// mapSender maps export sender names onto the shared role vocabulary.
func mapSender(sender string) string {
	sender = strings.ToLower(sender)
	switch sender {
	case "human":
		return "user"
	case "assistant":
		return "assistant"
	case "":
		return "unknown"
	default:
		return sender
	}
}
