package ingest

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/KafClaw/convostore/internal/archive"
	"github.com/KafClaw/convostore/internal/identity"
	"github.com/KafClaw/convostore/internal/source"
)

func newTestStore(t *testing.T) *archive.Store {
	t.Helper()
	s, err := archive.Open(filepath.Join(t.TempDir(), "convo.db"), archive.Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seqOf(recs ...source.Record) iter.Seq2[source.Record, error] {
	return func(yield func(source.Record, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func group(t *testing.T, recs ...source.Record) Grouping {
	t.Helper()
	g, err := Group(context.Background(), seqOf(recs...))
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	return g
}

var greeting = []source.Record{
	{ThreadID: "t1", ThreadTitle: "Greeting", Role: "user", Content: "Hello", CreatedAt: 1000},
	{ThreadID: "t1", ThreadTitle: "Greeting", Role: "assistant", Content: "Hi", CreatedAt: 1001},
}

func newWriter(s *archive.Store) *Writer {
	return &Writer{
		Store:    s,
		Scope:    identity.Scope{Platform: "chatgpt", Account: "main"},
		SourceID: "src_0001",
	}
}

func TestGroupKeepsFirstSeenOrderAndSorts(t *testing.T) {
	g := group(t,
		source.Record{ThreadID: "b", Content: "b2", CreatedAt: 20},
		source.Record{ThreadID: "a", Content: "a1", CreatedAt: 5},
		source.Record{ThreadID: "b", Content: "b1", CreatedAt: 10},
		source.Record{ThreadID: "b", Content: "b3", CreatedAt: 20},
	)
	if g.Records != 4 || len(g.Threads) != 2 {
		t.Fatalf("records=%d threads=%d", g.Records, len(g.Threads))
	}
	if g.Threads[0].ID != "b" || g.Threads[1].ID != "a" {
		t.Fatalf("expected first-seen order, got %s,%s", g.Threads[0].ID, g.Threads[1].ID)
	}
	var order []string
	for _, r := range g.Threads[0].Records {
		order = append(order, r.Content)
	}
	if len(order) != 3 || order[0] != "b1" || order[1] != "b2" || order[2] != "b3" {
		t.Fatalf("unexpected order %v", order)
	}
	if len(g.Samples) != 4 || g.Samples[0].Content != "b2" {
		t.Fatalf("samples should follow stream order: %+v", g.Samples)
	}
}

func TestGroupAbortsOnStreamError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(source.Record, error) bool) {
		if !yield(greeting[0], nil) {
			return
		}
		yield(source.Record{}, boom)
	}
	g, err := Group(context.Background(), seq)
	if !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if len(g.Threads) != 0 || g.Records != 0 {
		t.Fatalf("expected empty grouping on error, got %+v", g)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := group(t, greeting...)

	res, err := newWriter(s).Write(ctx, g.Threads)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if res.Inserted != 2 || res.Duplicates != 0 || res.Total != 2 {
		t.Fatalf("first write result %+v", res)
	}
	if res.RunID == "" {
		t.Fatal("expected generated run id")
	}

	res, err = newWriter(s).Write(ctx, g.Threads)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 2 || res.Total != 2 {
		t.Fatalf("second write result %+v", res)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !st.Consistent() || st.Threads != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestWriteStoresGoldenIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := newWriter(s).Write(ctx, group(t, greeting...).Threads); err != nil {
		t.Fatalf("write: %v", err)
	}

	var thread, ts, text string
	err := s.DB().QueryRow(`SELECT canonical_thread_id, ts, text FROM messages WHERE message_id = ?`,
		"758e14eeba852bb968d568c9e9bc97d154969742").Scan(&thread, &ts, &text)
	if err != nil {
		t.Fatalf("lookup first message: %v", err)
	}
	if thread != "9e4695af9e3a96911caff41a480f9c02e8f72e4f" {
		t.Fatalf("canonical thread=%s", thread)
	}
	if ts != "1970-01-01T00:16:40+00:00" || text != "Hello" {
		t.Fatalf("ts=%q text=%q", ts, text)
	}
}

func TestWriteSkipsUntimed(t *testing.T) {
	s := newTestStore(t)
	g := group(t, source.Record{ThreadID: "t", Role: "user", Content: "no clock", CreatedAt: 0})

	res, err := newWriter(s).Write(context.Background(), g.Threads)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 0 || res.Total != 0 {
		t.Fatalf("expected no writes, got %+v", res)
	}
}

func TestWriteSkipsOutOfRangeTimestamps(t *testing.T) {
	s := newTestStore(t)
	g := group(t,
		source.Record{ThreadID: "t", Role: "user", Content: "in range", CreatedAt: 1754341171},
		source.Record{ThreadID: "t", Role: "assistant", Content: "milliseconds", CreatedAt: 1754341171713},
		source.Record{ThreadID: "t", Role: "assistant", Content: "overflow", CreatedAt: 1e20},
	)

	res, err := newWriter(s).Write(context.Background(), g.Threads)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Inserted != 1 || res.Total != 1 {
		t.Fatalf("expected only the in-range record, got %+v", res)
	}
	if u := Summarize(g).Untimed; u != 2 {
		t.Fatalf("untimed=%d, want 2", u)
	}
}

func TestUntimedFirstRecordAnchorsThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	untimed := source.Record{ThreadID: "t", ThreadTitle: "T", Role: "user", Content: "opening", CreatedAt: 0}
	timed := source.Record{ThreadID: "t", ThreadTitle: "T", Role: "assistant", Content: "reply", CreatedAt: 50}

	res, err := newWriter(s).Write(ctx, group(t, timed, untimed).Threads)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("inserted=%d, want 1", res.Inserted)
	}

	want := identity.ThreadID(identity.Scope{Platform: "chatgpt", Account: "main"}, untimed)
	var got string
	if err := s.DB().QueryRow(`SELECT canonical_thread_id FROM messages`).Scan(&got); err != nil {
		t.Fatalf("query: %v", err)
	}
	if got != want {
		t.Fatalf("canonical thread=%s, want %s", got, want)
	}
}

func TestInputOrderDoesNotMatter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := newWriter(s).Write(ctx, group(t, greeting[0], greeting[1]).Threads); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A second export with a different thread id and reversed order merges.
	a, b := greeting[1], greeting[0]
	a.ThreadID, b.ThreadID = "other-export", "other-export"
	res, err := newWriter(s).Write(ctx, group(t, a, b).Threads)
	if err != nil {
		t.Fatalf("write reversed: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 2 {
		t.Fatalf("expected full dedup, got %+v", res)
	}
}

func TestBatchThresholdCommitsMidThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var recs []source.Record
	for i := 0; i < 7; i++ {
		recs = append(recs, source.Record{
			ThreadID:  "long",
			Role:      "user",
			Content:   "message " + string(rune('a'+i)),
			CreatedAt: float64(100 + i),
		})
	}

	w := newWriter(s)
	w.BatchSize = 2
	res, err := w.Write(ctx, group(t, recs...).Threads)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Inserted != 7 || res.Total != 7 {
		t.Fatalf("unexpected result %+v", res)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !st.Consistent() || st.Threads != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	hits, err := s.Search(ctx, "message", archive.SearchOptions{Limit: 100})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 7 {
		t.Fatalf("expected 7 hits, got %d", len(hits))
	}
}

func TestWriteHonorsCancellation(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newWriter(s).Write(ctx, group(t, greeting...).Threads)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

// cancelOnCommit cancels a context once the writer logs its first batch commit.
type cancelOnCommit struct {
	cancel context.CancelFunc
}

func (h cancelOnCommit) Enabled(context.Context, slog.Level) bool { return true }

func (h cancelOnCommit) Handle(_ context.Context, r slog.Record) error {
	if r.Message == "Committed batch" {
		h.cancel()
	}
	return nil
}

func (h cancelOnCommit) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h cancelOnCommit) WithGroup(string) slog.Handler      { return h }

func TestWriteKeepsCommittedBatchesOnCancel(t *testing.T) {
	s := newTestStore(t)
	var recs []source.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, source.Record{
			ThreadID:  "long",
			Role:      "user",
			Content:   "line " + string(rune('a'+i)),
			CreatedAt: float64(500 + i),
		})
	}
	g := group(t, recs...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prev := slog.Default()
	slog.SetDefault(slog.New(cancelOnCommit{cancel: cancel}))
	t.Cleanup(func() { slog.SetDefault(prev) })

	w := newWriter(s)
	w.BatchSize = 2
	res, err := w.Write(ctx, g.Threads)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("inserted=%d, want 2", res.Inserted)
	}
	slog.SetDefault(prev)

	bg := context.Background()
	n, err := s.Count(bg)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count=%d, want 2 committed rows", n)
	}
	st, err := s.Stats(bg)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !st.Consistent() {
		t.Fatalf("expected consistent stats after cancel: %+v", st)
	}

	res, err = w.Write(bg, g.Threads)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if res.Inserted != 3 || res.Duplicates != 2 || res.Total != 5 {
		t.Fatalf("unexpected rerun result %+v", res)
	}
}

func TestSummarize(t *testing.T) {
	var recs []source.Record
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		for j := 0; j <= i; j++ {
			recs = append(recs, source.Record{ThreadID: id, ThreadTitle: "thread " + id, CreatedAt: float64(j + 1)})
		}
	}
	recs = append(recs, source.Record{ThreadID: "a", CreatedAt: 0})

	s := Summarize(group(t, recs...))
	if s.Records != 22 || s.Threads != 6 {
		t.Fatalf("records=%d threads=%d", s.Records, s.Threads)
	}
	if s.Untimed != 1 {
		t.Fatalf("untimed=%d, want 1", s.Untimed)
	}
	if len(s.Top) != TopThreads || s.Top[0].ID != "f" || s.Top[0].Messages != 6 {
		t.Fatalf("unexpected top threads %+v", s.Top)
	}
	if s.AvgPerThread < 3.66 || s.AvgPerThread > 3.67 {
		t.Fatalf("avg=%v", s.AvgPerThread)
	}
}
