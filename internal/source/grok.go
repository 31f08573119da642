package source

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// Grok reads X.AI exports: an object whose "conversations" array holds
// {conversation, responses} wrappers.
type Grok struct{}

func (Grok) Format() string { return "grok" }

func (g Grok) Records(ctx context.Context, path string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		r, err := openExport(path)
		if err != nil {
			yield(Record{}, fmt.Errorf("grok: %w", err))
			return
		}
		defer r.Close()

		if start, _ := r.peek(); start != '{' {
			yield(Record{}, malformed("grok", "export should have a 'conversations' key"))
			return
		}
		dec := r.decoder()
		if err := expectDelim(dec, '{'); err != nil {
			yield(Record{}, malformed("grok", "%v", err))
			return
		}

		found := false
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				yield(Record{}, streamErr(ctx, "grok", err))
				return
			}
			key, _ := keyTok.(string)
			valTok, err := dec.Token()
			if err != nil {
				yield(Record{}, streamErr(ctx, "grok", err))
				return
			}
			if key != "conversations" {
				if err := skipValue(dec, valTok); err != nil {
					yield(Record{}, streamErr(ctx, "grok", err))
					return
				}
				continue
			}
			if d, ok := valTok.(json.Delim); !ok || d != '[' {
				yield(Record{}, malformed("grok", "'conversations' should be an array"))
				return
			}
			found = true

			stopped := false
			err = eachElement(ctx, dec, func(raw json.RawMessage) (bool, error) {
				var w grokWrapper
				if err := json.Unmarshal(raw, &w); err != nil {
					return false, malformed("grok", "decode conversation: %v", err)
				}
				for _, rec := range w.records() {
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
			if err != nil {
				yield(Record{}, streamErr(ctx, "grok", err))
				return
			}
		}

		if err := expectDelim(dec, '}'); err != nil {
			yield(Record{}, streamErr(ctx, "grok", err))
			return
		}
		if err := expectEOF(dec); err != nil {
			yield(Record{}, streamErr(ctx, "grok", err))
			return
		}
		if !found {
			yield(Record{}, malformed("grok", "export should have a 'conversations' key"))
		}
	}
}

type grokWrapper struct {
	Conversation struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"conversation"`
	Responses []struct {
		Response json.RawMessage `json:"response"`
	} `json:"responses"`
}

type grokResponse struct {
	Sender     string          `json:"sender"`
	Message    string          `json:"message"`
	CreateTime json.RawMessage `json:"create_time"`
}

func (w grokWrapper) records() []Record {
	out := make([]Record, 0, len(w.Responses))
	for _, rw := range w.Responses {
		if isNull(rw.Response) {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rw.Response, &fields); err != nil || len(fields) == 0 {
			continue
		}
		var resp grokResponse
		if err := json.Unmarshal(rw.Response, &resp); err != nil {
			continue
		}
		out = append(out, Record{
			ThreadID:    w.Conversation.ID,
			ThreadTitle: w.Conversation.Title,
			Role:        mapSender(resp.Sender),
			Content:     resp.Message,
			CreatedAt:   grokTime(resp.CreateTime),
		})
	}
	return out
}

// grokTime decodes the export's timestamp forms: a MongoDB extended-JSON
// date ({"$date": {"$numberLong": "<ms>"}} or {"$date": "<iso>"}), or a bare
// number of seconds. Anything else is unknown.
func grokTime(raw json.RawMessage) float64 {
	switch {
	case isKind(raw, '{'):
		var wrapper struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return 0
		}
		switch {
		case isKind(wrapper.Date, '{'):
			var long struct {
				NumberLong json.RawMessage `json:"$numberLong"`
			}
			if err := json.Unmarshal(wrapper.Date, &long); err != nil || isNull(long.NumberLong) {
				return 0
			}
			ms, ok := parseNumber(long.NumberLong)
			if !ok {
				return 0
			}
			return ms / 1000.0
		case isKind(wrapper.Date, '"'):
			var s string
			if err := json.Unmarshal(wrapper.Date, &s); err != nil {
				return 0
			}
			ts, _ := parseISOTime(s)
			return ts
		}
		return 0
	case isNull(raw), isKind(raw, '"'), isKind(raw, '['), isKind(raw, 't'), isKind(raw, 'f'):
		return 0
	default:
		ts, _ := parseNumber(raw)
		return ts
	}
}
