package pipeline

// Range is a [Start,End) progress span in percent.
type Range struct {
	Start int
	End   int
}

// progress starts at 5 after setup; extraction ends at 85, or 70 when an
// evidence pass follows.
const (
	progressStart            = 5
	progressExtractionEnd    = 85
	progressExtractionEndCit = 70
)

func extractionEnd(withEvidence bool) int {
	if withEvidence {
		return progressExtractionEndCit
	}
	return progressExtractionEnd
}

// ProgressRanges partitions the extraction span contiguously across n calls:
// no gaps, no overlaps, monotonically increasing.
func ProgressRanges(n int, withEvidence bool) []Range {
	if n <= 0 {
		return nil
	}
	end := extractionEnd(withEvidence)
	span := end - progressStart

	ranges := make([]Range, n)
	for i := 0; i < n; i++ {
		ranges[i] = Range{
			Start: progressStart + i*span/n,
			End:   progressStart + (i+1)*span/n,
		}
	}
	return ranges
}
