package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/KafClaw/convostore/internal/source"
)

// SnippetLen is how many code points of the first message's content feed the
// thread fingerprint.
const SnippetLen = 256

// Scope is the platform and account a batch of records is ingested under.
type Scope struct {
	Platform string
	Account  string
}

// ThreadID fingerprints a thread from its earliest message. Adapter thread ids
// play no part, so the same conversation from two exports maps to one thread.
func ThreadID(scope Scope, first source.Record) string {
	return fingerprint(
		scope.Platform,
		scope.Account,
		Normalize(first.ThreadTitle),
		anchorSeconds(first.CreatedAt),
		first.Role,
		Normalize(Snippet(first.Content, SnippetLen)),
	)
}

// MessageID fingerprints one message within a canonical thread.
func MessageID(scope Scope, threadID string, msg source.Record) string {
	return fingerprint(
		scope.Platform,
		scope.Account,
		threadID,
		msg.Role,
		strconv.FormatInt(RoundEpoch(msg.CreatedAt), 10),
		Normalize(msg.Content),
	)
}

// fingerprint is a dedup key, not an integrity check.
func fingerprint(fields ...string) string {
	sum := sha1.Sum([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

// Usable epoch range, 0001-01-01T00:00:00Z up to but excluding year 10000.
const (
	minEpoch = -62135596800
	maxEpoch = 253402300800
)

// Known reports whether ts is a usable timestamp: non-zero and within the
// years 1 to 9999.
func Known(ts float64) bool {
	_, ok := unixSeconds(ts)
	return ok
}

// RoundEpoch rounds to whole seconds, half to even. Unknown timestamps round to 0.
func RoundEpoch(ts float64) int64 {
	if !Known(ts) {
		return 0
	}
	return int64(math.RoundToEven(ts))
}

// anchorSeconds is the thread anchor form of ts: its rounded value in decimal,
// or empty when that is zero or ts is not finite. Out of range values still
// anchor the thread.
func anchorSeconds(ts float64) string {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return ""
	}
	r := math.RoundToEven(ts)
	if r == 0 {
		return ""
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}

// FormatTimestamp renders ts as second-precision ISO-8601 UTC, e.g.
// 2025-08-04T20:59:31+00:00.
func FormatTimestamp(ts float64) (string, bool) {
	sec, ok := unixSeconds(ts)
	if !ok {
		return "", false
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02T15:04:05") + "+00:00", true
}

// unixSeconds rounds ts to microseconds and drops the sub-second part. It
// fails for zero, NaN and anything outside the usable range.
func unixSeconds(ts float64) (int64, bool) {
	if ts == 0 || math.IsNaN(ts) || ts < minEpoch || ts >= maxEpoch {
		return 0, false
	}
	whole, frac := math.Modf(ts)
	us := math.RoundToEven(frac * 1e6)
	switch {
	case us >= 1e6:
		whole++
	case us < 0:
		whole--
	}
	if whole < minEpoch || whole >= maxEpoch {
		return 0, false
	}
	return int64(whole), true
}
