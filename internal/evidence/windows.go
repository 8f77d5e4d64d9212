package evidence

// Window is a half-open-free inclusive range [From,To] of segment ids.
type Window struct {
	From int
	To   int
}

// BuildWindows partitions n segments into overlapping windows so no genuine
// boundary excerpt is lost between adjacent windows.
func BuildWindows(n, size, overlap int) []Window {
	if n <= 0 || size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size - 1
	}

	var windows []Window
	step := size - overlap
	for start := 0; start < n; start += step {
		end := start + size - 1
		if end >= n {
			end = n - 1
		}
		windows = append(windows, Window{From: start, To: end})
		if end == n-1 {
			break
		}
	}
	return windows
}

// SelectWindows picks at most max evenly spaced windows, always including
// the first and last, to cap total calls on very long transcripts.
func SelectWindows(windows []Window, max int) []Window {
	if max <= 0 || len(windows) <= max {
		return windows
	}
	if max == 1 {
		return windows[:1]
	}

	selected := make([]Window, 0, max)
	for i := 0; i < max; i++ {
		idx := i * (len(windows) - 1) / (max - 1)
		selected = append(selected, windows[idx])
	}
	return selected
}
