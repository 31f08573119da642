package ingest

import (
	"sort"

	"github.com/KafClaw/convostore/internal/identity"
)

// TopThreads is how many of the largest threads a Summary lists.
const TopThreads = 5

// ThreadCount is one row of the largest-threads listing.
type ThreadCount struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Messages int    `json:"messages"`
}

// Summary describes a parsed export without touching any store.
type Summary struct {
	Records      int           `json:"records"`
	Threads      int           `json:"threads"`
	AvgPerThread float64       `json:"avg_per_thread"`
	Top          []ThreadCount `json:"top"`
	Untimed      int           `json:"untimed"` // records the writer would skip
}

func Summarize(g Grouping) Summary {
	s := Summary{Records: g.Records, Threads: len(g.Threads)}
	if s.Threads > 0 {
		s.AvgPerThread = float64(s.Records) / float64(s.Threads)
	}
	counts := make([]ThreadCount, 0, len(g.Threads))
	for _, th := range g.Threads {
		counts = append(counts, ThreadCount{ID: th.ID, Title: th.Title, Messages: len(th.Records)})
		for _, rec := range th.Records {
			if !identity.Known(rec.CreatedAt) {
				s.Untimed++
			}
		}
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Messages > counts[j].Messages })
	if len(counts) > TopThreads {
		counts = counts[:TopThreads]
	}
	s.Top = counts
	return s
}
