package waitlist

import (
	"sort"
	"time"

	"mindline/internal/slots"

	"github.com/google/uuid"
)

// RankConfig carries the tunables the ranker needs
type RankConfig struct {
	// HighFlexibilityThreshold is the flexibility score at or above which the
	// day/time preference filter becomes advisory instead of excluding.
	HighFlexibilityThreshold int
}

// candidate pairs an entry with its ranking annotations
type candidate struct {
	entry *WaitlistEntry
	// outsideWindow is set when the entry's day/time preferences do not cover
	// the slot but the entry was kept due to high flexibility. Such entries
	// rank after in-window entries of the same tier.
	outsideWindow bool
}

// Rank produces the ordered candidate list for a slot. Pure function over
// its inputs: entries are filtered by the hard rules, then ordered by
// priority tier, preference fit, flexibility, and age. The order is total:
// any two distinct entries resolve deterministically.
func Rank(slot slots.Slot, entries []WaitlistEntry, now time.Time, cfg RankConfig) []uuid.UUID {
	candidates := make([]candidate, 0, len(entries))

	for i := range entries {
		entry := &entries[i]
		if !entry.IsActive() || entry.IsExpiredAt(now) {
			continue
		}
		if !entry.Modality.Accepts(slot.Modality) {
			continue
		}
		if !entry.AcceptsProvider(slot.ProviderID) {
			continue
		}
		if violatesMinNotice(entry, slot, now) {
			continue
		}

		outside := !matchesSchedulePreference(entry, slot)
		if outside && entry.Flexibility < cfg.HighFlexibilityThreshold {
			continue
		}

		candidates = append(candidates, candidate{entry: entry, outsideWindow: outside})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return rankLess(candidates[i], candidates[j])
	})

	ranked := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.entry.ID
	}
	return ranked
}

// rankLess is the total order over candidates: tier, then in-window before
// advisory, then flexibility, then first-come-first-served, with the entry
// id as the final deterministic tiebreak.
func rankLess(a, b candidate) bool {
	aw, bw := a.entry.Priority.Weight(), b.entry.Priority.Weight()
	if aw != bw {
		return aw > bw
	}
	if a.outsideWindow != b.outsideWindow {
		return !a.outsideWindow
	}
	if a.entry.Flexibility != b.entry.Flexibility {
		return a.entry.Flexibility > b.entry.Flexibility
	}
	if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
		return a.entry.CreatedAt.Before(b.entry.CreatedAt)
	}
	return a.entry.ID.String() < b.entry.ID.String()
}

func violatesMinNotice(entry *WaitlistEntry, slot slots.Slot, now time.Time) bool {
	if entry.MinNoticeHours <= 0 {
		return false
	}
	notice := time.Duration(entry.MinNoticeHours) * time.Hour
	return slot.StartTime.Before(now.Add(notice))
}

// matchesSchedulePreference reports whether the slot falls inside the
// entry's preferred day and time-of-day sets. Empty sets accept anything.
func matchesSchedulePreference(entry *WaitlistEntry, slot slots.Slot) bool {
	if len(entry.PreferredDays) > 0 && !entry.PreferredDays.Contains(slot.Weekday()) {
		return false
	}
	if len(entry.PreferredTimes) > 0 && !entry.PreferredTimes.Contains(string(slot.DayPart())) {
		return false
	}
	return true
}
