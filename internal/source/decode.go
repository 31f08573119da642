package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// exportReader wraps an open export file. Exports are typically one huge
// line, so the buffer is larger than bufio's default.
type exportReader struct {
	f  *os.File
	br *bufio.Reader
}

func openExport(path string) (*exportReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	return &exportReader{f: f, br: bufio.NewReaderSize(f, 1<<20)}, nil
}

func (r *exportReader) Close() error { return r.f.Close() }

// peek returns the first non-whitespace byte without consuming it.
// An empty file yields io.EOF.
func (r *exportReader) peek() (byte, error) {
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := r.br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func (r *exportReader) decoder() *json.Decoder {
	return json.NewDecoder(r.br)
}

// expectDelim consumes the next token and checks that it is want.
func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// expectEOF reports trailing data after the top-level value.
func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return err
		}
		return errors.New("unexpected data after top-level value")
	}
	return nil
}

// eachElement decodes the elements of an array whose '[' was already consumed,
// then consumes the closing ']'. fn returning false stops early without error.
func eachElement(ctx context.Context, dec *json.Decoder, fn func(json.RawMessage) (bool, error)) error {
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		more, err := fn(raw)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return expectDelim(dec, ']')
}

// skipValue consumes the remainder of a value whose first token was already read.
func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		return nil
	}
	if d != '{' && d != '[' {
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// streamErr classifies the error that ended an export stream. Cancellation
// passes through; everything else is structural.
func streamErr(ctx context.Context, format string, err error) error {
	if errors.Is(err, ErrMalformed) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return malformed(format, "%v", err)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func isKind(raw json.RawMessage, first byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == first
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseISOTime parses an ISO-8601 timestamp into epoch seconds. Timestamps
// without an offset are read as UTC.
func parseISOTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return float64(t.Unix()) + float64(t.Nanosecond())/1e9, true
		}
	}
	return 0, false
}

// parseNumber reads a JSON number or a numeric string.
func parseNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
