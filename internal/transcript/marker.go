package transcript

import (
	"regexp"
	"strconv"
)

var markerRe = regexp.MustCompile(`\[(\d+):([0-5]\d)\]`)

// ParseMarker extracts the first [MM:SS] marker from text and returns it as
// whole seconds. Returns false when no marker is present.
func ParseMarker(text string) (int, bool) {
	m := markerRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	return minutes*60 + seconds, true
}
