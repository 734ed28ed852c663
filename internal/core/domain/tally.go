package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type TallyEntry struct {
	NomineeID uuid.UUID `json:"nominee_id"`
	Count     int64     `json:"count"`
}

// TallySnapshot is what the counter cache holds for one contest: stored
// counts per nominee and the bias overlay captured when it was seeded.
type TallySnapshot struct {
	Counts map[uuid.UUID]int64
	Bias   map[uuid.UUID]int64
	Stale  bool
}

// Observable applies the bias overlay and returns entries sorted by count
// descending, nominee id ascending on ties.
func (s TallySnapshot) Observable() []TallyEntry {
	seen := make(map[uuid.UUID]int64, len(s.Counts))
	for id, n := range s.Counts {
		seen[id] += n
	}
	for id, b := range s.Bias {
		seen[id] += b
	}

	entries := make([]TallyEntry, 0, len(seen))
	for id, n := range seen {
		entries = append(entries, TallyEntry{NomineeID: id, Count: n})
	}
	SortTally(entries)
	return entries
}

func SortTally(entries []TallyEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].NomineeID.String() < entries[j].NomineeID.String()
	})
}

type ContestResult struct {
	ContestID uuid.UUID    `json:"contest_id"`
	Name      string       `json:"name"`
	Tally     []TallyEntry `json:"tally"`
}

type ReconcileReport struct {
	Checked   int       `json:"checked"`
	Repaired  int       `json:"repaired"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	Duration  time.Duration
}

type MediaURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredTally is the durable store's view of a contest tally: grouped vote
// counts (zero for every eligible nominee without votes) and active biases.
type StoredTally struct {
	Contest *Contest
	Counts  map[uuid.UUID]int64
	Bias    map[uuid.UUID]int64
	// LastKnown is set when the tally was served from the last-known-good
	// map while the store was unreachable. Such a tally must not seed caches.
	LastKnown bool
}

func (t *StoredTally) Snapshot() TallySnapshot {
	return TallySnapshot{Counts: t.Counts, Bias: t.Bias}
}
