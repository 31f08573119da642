package source

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
)

// Anthropic reads Claude exports: a JSON array of conversations, each with a
// chat_messages list.
type Anthropic struct{}

func (Anthropic) Format() string { return "anthropic" }

func (a Anthropic) Records(ctx context.Context, path string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		r, err := openExport(path)
		if err != nil {
			yield(Record{}, fmt.Errorf("anthropic: %w", err))
			return
		}
		defer r.Close()

		if start, _ := r.peek(); start != '[' {
			yield(Record{}, malformed("anthropic", "export should be a JSON array"))
			return
		}
		dec := r.decoder()
		if err := expectDelim(dec, '['); err != nil {
			yield(Record{}, malformed("anthropic", "%v", err))
			return
		}

		stopped := false
		err = eachElement(ctx, dec, func(raw json.RawMessage) (bool, error) {
			var conv anthropicConversation
			if err := json.Unmarshal(raw, &conv); err != nil {
				return false, malformed("anthropic", "decode conversation: %v", err)
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
			yield(Record{}, streamErr(ctx, "anthropic", err))
		}
	}
}

type anthropicConversation struct {
	UUID         string             `json:"uuid"`
	Name         string             `json:"name"`
	ChatMessages []anthropicMessage `json:"chat_messages"`
}

type anthropicMessage struct {
	Sender    string          `json:"sender"`
	Text      string          `json:"text"`
	Content   json.RawMessage `json:"content"`
	CreatedAt json.RawMessage `json:"created_at"`
}

func (c anthropicConversation) records() []Record {
	out := make([]Record, 0, len(c.ChatMessages))
	for _, m := range c.ChatMessages {
		var ts float64
		var s string
		if err := json.Unmarshal(m.CreatedAt, &s); err == nil {
			ts, _ = parseISOTime(s)
		}
		out = append(out, Record{
			ThreadID:    c.UUID,
			ThreadTitle: c.Name,
			Role:        mapSender(m.Sender),
			Content:     m.text(),
			CreatedAt:   ts,
		})
	}
	return out
}

// text prefers the structured content blocks and falls back to the flat text
// field when there are none.
func (m anthropicMessage) text() string {
	if !isKind(m.Content, '[') {
		return m.Text
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal(m.Content, &blocks); err != nil || len(blocks) == 0 {
		return m.Text
	}
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if !isKind(b, '{') {
			continue
		}
		var block struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(b, &block); err != nil || block.Type != "text" {
			continue
		}
		texts = append(texts, block.Text)
	}
	return strings.Join(texts, "\n")
}
