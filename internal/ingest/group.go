// Package ingest groups adapter records into threads and writes them to the
// archive under content-addressed ids.
package ingest

import (
	"context"
	"iter"
	"sort"

	"github.com/KafClaw/convostore/internal/source"
)

// SampleSize is how many records a Grouping keeps for dry-run previews.
const SampleSize = 5

// Thread is every record sharing one adapter thread id, ordered by time.
type Thread struct {
	ID      string
	Title   string
	Records []source.Record
}

// Grouping is the fully parsed export.
type Grouping struct {
	Threads []Thread
	Records int
	Samples []source.Record // first records in stream order
}

// Group drains seq and buckets records by adapter thread id. Buckets stay in
// first-seen order and each is stable-sorted by CreatedAt. Any stream error
// aborts grouping, so nothing is written for a partially parsed export.
func Group(ctx context.Context, seq iter.Seq2[source.Record, error]) (Grouping, error) {
	var g Grouping
	index := map[string]int{}
	for rec, err := range seq {
		if err != nil {
			return Grouping{}, err
		}
		if err := ctx.Err(); err != nil {
			return Grouping{}, err
		}
		g.Records++
		if len(g.Samples) < SampleSize {
			g.Samples = append(g.Samples, rec)
		}
		i, ok := index[rec.ThreadID]
		if !ok {
			i = len(g.Threads)
			index[rec.ThreadID] = i
			g.Threads = append(g.Threads, Thread{ID: rec.ThreadID, Title: rec.ThreadTitle})
		}
		g.Threads[i].Records = append(g.Threads[i].Records, rec)
	}
	for i := range g.Threads {
		recs := g.Threads[i].Records
		sort.SliceStable(recs, func(a, b int) bool { return recs[a].CreatedAt < recs[b].CreatedAt })
	}
	return g, nil
}
