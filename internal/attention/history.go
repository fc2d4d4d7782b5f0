package attention

import "time"

// stimulusHistory is an age-windowed deque of stimulus timestamps for
// one source. Appends go to the back; pruning pops expired entries off
// the front on every access, so there is no background sweep.
type stimulusHistory struct {
	times []time.Time
	head  int
}

func (h *stimulusHistory) append(t time.Time) {
	h.times = append(h.times, t)
}

// prune drops entries older than now-window. The backing slice is
// compacted once the dead prefix outgrows the live entries, keeping
// append and prune O(1) amortized.
func (h *stimulusHistory) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	for h.head < len(h.times) && h.times[h.head].Before(cutoff) {
		h.head++
	}
	if h.head > len(h.times)-h.head {
		h.times = append(h.times[:0], h.times[h.head:]...)
		h.head = 0
	}
}

func (h *stimulusHistory) len() int {
	return len(h.times) - h.head
}
