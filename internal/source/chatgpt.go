package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
)

// ChatGPT reads OpenAI conversations.json exports: either an array of
// conversations or a single conversation object.
type ChatGPT struct{}

func (ChatGPT) Format() string { return "chatgpt" }

func (c ChatGPT) Records(ctx context.Context, path string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		r, err := openExport(path)
		if err != nil {
			yield(Record{}, fmt.Errorf("chatgpt: %w", err))
			return
		}
		defer r.Close()

		start, err := r.peek()
		if err != nil && !errors.Is(err, io.EOF) {
			yield(Record{}, fmt.Errorf("chatgpt: read export: %w", err))
			return
		}
		dec := r.decoder()

		switch start {
		case '[':
			if err := expectDelim(dec, '['); err != nil {
				yield(Record{}, malformed("chatgpt", "%v", err))
				return
			}
			stopped := false
			err := eachElement(ctx, dec, func(raw json.RawMessage) (bool, error) {
				if !isKind(raw, '{') {
					return true, nil
				}
				var conv chatgptConversation
				if err := json.Unmarshal(raw, &conv); err != nil {
					return false, malformed("chatgpt", "decode conversation: %v", err)
				}
				for _, rec := range conv.records() {
					if !yield(rec, nil) {
						stopped = true
						return false, nil
					}
				}
				return true, nil
			})
			if stopped {
				return
			}
			if err == nil {
				err = expectEOF(dec)
			}
			if err != nil {
				yield(Record{}, streamErr(ctx, "chatgpt", err))
			}
		case '{':
			var conv chatgptConversation
			if err := dec.Decode(&conv); err != nil {
				yield(Record{}, malformed("chatgpt", "invalid JSON: %v", err))
				return
			}
			if err := expectEOF(dec); err != nil {
				yield(Record{}, malformed("chatgpt", "invalid JSON: %v", err))
				return
			}
			for _, rec := range conv.records() {
				if !yield(rec, nil) {
					return
				}
			}
		default:
			yield(Record{}, malformed("chatgpt", "file does not look like JSON"))
		}
	}
}

type chatgptConversation struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Title          string         `json:"title"`
	Mapping        chatgptMapping `json:"mapping"`
}

type chatgptNode struct {
	Message *chatgptMessage `json:"message"`
}

type chatgptMessage struct {
	Author *struct {
		Role string `json:"role"`
	} `json:"author"`
	Content    json.RawMessage `json:"content"`
	CreateTime json.RawMessage `json:"create_time"`
	UpdateTime json.RawMessage `json:"update_time"`
}

// chatgptMapping keeps mapping nodes in document order so that messages with
// equal timestamps come out in a stable order across runs.
type chatgptMapping []chatgptNode

func (m *chatgptMapping) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*m = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("mapping: %w", err)
	}
	var nodes chatgptMapping
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("mapping key: %w", err)
		}
		var n chatgptNode
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("mapping node: %w", err)
		}
		nodes = append(nodes, n)
	}
	*m = nodes
	return nil
}

func (c chatgptConversation) records() []Record {
	threadID := c.ID
	if threadID == "" {
		threadID = c.ConversationID
	}

	var out []Record
	for _, n := range c.Mapping {
		m := n.Message
		if m == nil {
			continue
		}
		// Numeric strings count; anything else reads as no timestamp.
		ts, _ := parseNumber(m.CreateTime)
		if ts == 0 {
			ts, _ = parseNumber(m.UpdateTime)
		}
		if ts == 0 {
			continue
		}
		role := ""
		if m.Author != nil {
			role = m.Author.Role
		}
		out = append(out, Record{
			ThreadID:    threadID,
			ThreadTitle: c.Title,
			Role:        role,
			Content:     chatgptText(m.Content),
			CreatedAt:   ts,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// chatgptText joins the non-empty string parts of a content object.
// Non-string parts (images, tool payloads) are dropped.
func chatgptText(raw json.RawMessage) string {
	if !isKind(raw, '{') {
		return ""
	}
	var probe struct {
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	parts := make([]string, 0, len(probe.Parts))
	for _, p := range probe.Parts {
		if !isKind(p, '"') {
			continue
		}
		var s string
		if err := json.Unmarshal(p, &s); err != nil || s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}
