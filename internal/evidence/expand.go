package evidence

import (
	"github.com/attestlabs/attest/internal/transcript"
)

// expansion bounds for growing a candidate range to the minimum excerpt
// size. All tunable; none are load-bearing correctness constraints.
type bounds struct {
	MinWords          int
	MinChars          int
	MaxWords          int
	MaxChars          int
	MaxExpandSeconds  float64
	MaxExpandSegments int
}

// expandRange grows [from,to] alternately one segment left then one right
// until the excerpt meets the minimum (either threshold stops expansion),
// bounded by a maximum time window and segment count. Returns ok=false when
// the range cannot be brought inside the accept bounds: still under minimum
// after exhausting expansion, or over the maximum caps.
func expandRange(segments []transcript.Segment, from, to int, b bounds) (int, int, bool) {
	if from < 0 || to >= len(segments) || from > to {
		return 0, 0, false
	}

	left := true
	for !meetsMinimum(segments, from, to, b) {
		if exceedsMaximum(segments, from, to, b) {
			return 0, 0, false
		}
		if to-from+1 >= b.MaxExpandSegments {
			break
		}
		if segments[to].End-segments[from].Start >= b.MaxExpandSeconds {
			break
		}

		grew := false
		if left && from > 0 {
			from--
			grew = true
		} else if !left && to < len(segments)-1 {
			to++
			grew = true
		} else if from > 0 {
			from--
			grew = true
		} else if to < len(segments)-1 {
			to++
			grew = true
		}
		left = !left
		if !grew {
			break
		}
	}

	if !meetsMinimum(segments, from, to, b) || exceedsMaximum(segments, from, to, b) {
		return 0, 0, false
	}
	return from, to, true
}

// meetsMinimum is satisfied when either threshold is reached.
func meetsMinimum(segments []transcript.Segment, from, to int, b bounds) bool {
	text := transcript.JoinText(segments, from, to)
	return transcript.WordCount(text) >= b.MinWords || len(text) >= b.MinChars
}

// exceedsMaximum rejects excerpts over either hard cap.
func exceedsMaximum(segments []transcript.Segment, from, to int, b bounds) bool {
	text := transcript.JoinText(segments, from, to)
	return transcript.WordCount(text) > b.MaxWords || len(text) > b.MaxChars
}

// overlaps reports whether two inclusive segment ranges share any segment.
func overlaps(aFrom, aTo, bFrom, bTo int) bool {
	return aFrom <= bTo && bFrom <= aTo
}
