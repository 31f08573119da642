package archive

// Message is a persisted conversation message. All text fields are stored
// verbatim; normalization only ever feeds the ids.
type Message struct {
	MessageID         string `json:"message_id"`
	CanonicalThreadID string `json:"canonical_thread_id"`
	Platform          string `json:"platform"`
	AccountID         string `json:"account_id"`
	TS                string `json:"ts"` // ISO-8601 UTC, second precision
	Role              string `json:"role"`
	Text              string `json:"text"`
	Title             string `json:"title"`
	SourceID          string `json:"source_id"` // ingestion batch tag
}

// SearchResult is a message matched by the full-text index.
type SearchResult struct {
	Message
	Rank float64 `json:"rank"`
}

// Stats summarizes the store contents.
type Stats struct {
	Messages   int64            `json:"messages"`
	IndexRows  int64            `json:"index_rows"`
	DocIDs     int64            `json:"doc_ids"`
	Threads    int64            `json:"threads"`
	Unindexed  int64            `json:"unindexed"` // messages with no docid mapping
	ByPlatform map[string]int64 `json:"by_platform"`
}

// Consistent reports whether the primary table and the index agree 1:1.
func (s Stats) Consistent() bool {
	return s.Messages == s.IndexRows && s.Messages == s.DocIDs && s.Unindexed == 0
}

// Schema is the store layout. messages_fts is contentless, so its rowids are
// linked back to messages through messages_fts_docids.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	message_id TEXT PRIMARY KEY,
	canonical_thread_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	account_id TEXT NOT NULL,
	ts TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	title TEXT,
	source_id TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(text, content='');

CREATE TABLE IF NOT EXISTS messages_fts_docids (
	rowid INTEGER PRIMARY KEY,
	message_id TEXT NOT NULL
);
`
