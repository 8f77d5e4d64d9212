package evidence

import (
	"strings"
	"testing"

	"github.com/attestlabs/attest/internal/transcript"
)

// uniformSegments builds n segments of wordsEach words, 6 seconds apart.
func uniformSegments(n, wordsEach int) []transcript.Segment {
	segs := make([]transcript.Segment, n)
	for i := range segs {
		words := make([]string, wordsEach)
		for w := range words {
			words[w] = "word"
		}
		segs[i] = transcript.Segment{
			Index: i,
			Start: float64(i * 6),
			End:   float64(i*6 + 5),
			Text:  strings.Join(words, " "),
		}
	}
	return segs
}

func testBounds() bounds {
	return bounds{
		MinWords:          40,
		MinChars:          400,
		MaxWords:          180,
		MaxChars:          1400,
		MaxExpandSeconds:  240,
		MaxExpandSegments: 40,
	}
}

func TestExpandRangeAlreadyAcceptable(t *testing.T) {
	segs := uniformSegments(20, 10)
	// 5 segments of 10 words = 50 words, over the 40-word minimum.
	from, to, ok := expandRange(segs, 5, 9, testBounds())
	if !ok {
		t.Fatal("range rejected")
	}
	if from != 5 || to != 9 {
		t.Errorf("range = [%d,%d], expansion should not grow an acceptable range", from, to)
	}
}

func TestExpandRangeGrowsToMinimum(t *testing.T) {
	segs := uniformSegments(20, 10)
	// One 10-word segment must grow to at least 4 segments for 40 words.
	from, to, ok := expandRange(segs, 10, 10, testBounds())
	if !ok {
		t.Fatal("range rejected")
	}
	text := transcript.JoinText(segs, from, to)
	if transcript.WordCount(text) < 40 {
		t.Errorf("expanded to %d words, want >= 40", transcript.WordCount(text))
	}
	if from > 10 || to < 10 {
		t.Errorf("range [%d,%d] lost the original segment", from, to)
	}
	// Expansion alternates, so growth should be roughly balanced.
	if 10-from > (to-10)+2 || to-10 > (10-from)+2 {
		t.Errorf("range [%d,%d] grew lopsided around 10", from, to)
	}
}

func TestExpandRangeAtTranscriptStart(t *testing.T) {
	segs := uniformSegments(20, 10)
	from, to, ok := expandRange(segs, 0, 0, testBounds())
	if !ok {
		t.Fatal("range rejected")
	}
	if from != 0 {
		t.Errorf("from = %d, want 0", from)
	}
	if transcript.WordCount(transcript.JoinText(segs, from, to)) < 40 {
		t.Error("minimum not met growing rightward only")
	}
}

func TestExpandRangeRejectsOversized(t *testing.T) {
	segs := uniformSegments(40, 100)
	// 3 segments of 100 words = 300 words, over the 180-word cap.
	if _, _, ok := expandRange(segs, 5, 7, testBounds()); ok {
		t.Error("oversized range accepted")
	}
}

func TestExpandRangeRejectsUnreachableMinimum(t *testing.T) {
	// Two one-word segments in the whole transcript: expansion exhausts
	// without reaching the minimum.
	segs := uniformSegments(2, 1)
	if _, _, ok := expandRange(segs, 0, 0, testBounds()); ok {
		t.Error("accepted a range that can never meet the minimum")
	}
}

func TestExpandRangeCharMinimumAlsoSatisfies(t *testing.T) {
	// 30 words but > 400 chars: either minimum threshold accepts.
	segs := []transcript.Segment{{
		Index: 0,
		Start: 0,
		End:   5,
		Text:  strings.Repeat("supercalifragilistic ", 30),
	}}
	if _, _, ok := expandRange(segs, 0, 0, testBounds()); !ok {
		t.Error("range meeting the char minimum was rejected")
	}
}

func TestExpandRangeInvalidInput(t *testing.T) {
	segs := uniformSegments(5, 10)
	if _, _, ok := expandRange(segs, -1, 2, testBounds()); ok {
		t.Error("negative from accepted")
	}
	if _, _, ok := expandRange(segs, 3, 10, testBounds()); ok {
		t.Error("to past end accepted")
	}
	if _, _, ok := expandRange(segs, 3, 1, testBounds()); ok {
		t.Error("inverted range accepted")
	}
}

func TestExpandRangeRespectsSegmentBudget(t *testing.T) {
	segs := uniformSegments(200, 1)
	b := testBounds()
	b.MinChars = 1 << 20 // force word-count path
	from, to, ok := expandRange(segs, 100, 100, b)
	if ok {
		if to-from+1 > b.MaxExpandSegments {
			t.Errorf("expanded to %d segments, budget is %d", to-from+1, b.MaxExpandSegments)
		}
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		aFrom, aTo, bFrom, bTo int
		want                   bool
	}{
		{0, 5, 5, 9, true},
		{0, 5, 6, 9, false},
		{3, 8, 0, 20, true},
		{10, 12, 0, 9, false},
	}
	for _, tc := range cases {
		if got := overlaps(tc.aFrom, tc.aTo, tc.bFrom, tc.bTo); got != tc.want {
			t.Errorf("overlaps(%d,%d,%d,%d) = %v", tc.aFrom, tc.aTo, tc.bFrom, tc.bTo, got)
		}
	}
}
