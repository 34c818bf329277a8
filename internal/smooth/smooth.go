// Package smooth removes short-lived noise from per-scene annotation
// sequences. Every function is pure: it returns a corrected copy of the
// input and never modifies it.
package smooth

// blockEnd returns the exclusive end of the run of values equal to seq[i].
func blockEnd[T comparable](seq []T, i int) int {
	j := i + 1
	for j < len(seq) && seq[j] == seq[i] {
		j++
	}
	return j
}

// RunLength smooths a binary sequence. The first element is trusted. Any
// later block shorter than minRun whose value differs from the value just
// before it (after correction) is overwritten with that value, so
// corrections cascade forward.
func RunLength[T comparable](seq []T, minRun int) []T {
	out := append([]T(nil), seq...)
	for i := 1; i < len(out); {
		end := blockEnd(out, i)
		if end-i < minRun && out[i] != out[i-1] {
			for j := i; j < end; j++ {
				out[j] = out[i-1]
			}
		}
		i = end
	}
	return out
}

// Spikes removes short numeric spikes. A block shorter than minRun that
// differs from both its predecessor and successor is overwritten with the
// predecessor. Blocks touching either end of the sequence use their own
// value for the missing neighbour and are never spikes.
func Spikes[T comparable](seq []T, minRun int) []T {
	return Blips(seq, minRun, func(T) bool { return false })
}

// Blips is Spikes for categorical sequences with missing values. Missing
// elements never form a block and are left untouched; a missing neighbour
// is replaced by the block's own value.
func Blips[T comparable](seq []T, minRun int, missing func(T) bool) []T {
	out := append([]T(nil), seq...)
	for i := 0; i < len(out); {
		cur := out[i]
		if missing(cur) {
			i++
			continue
		}
		end := blockEnd(out, i)

		prev, next := cur, cur
		if i > 0 && !missing(out[i-1]) {
			prev = out[i-1]
		}
		if end < len(out) && !missing(out[end]) {
			next = out[end]
		}

		if end-i < minRun && cur != prev && cur != next {
			for j := i; j < end; j++ {
				out[j] = prev
			}
		}
		i = end
	}
	return out
}

// Changed counts positions where a and b differ.
func Changed[T comparable](a, b []T) int {
	n := 0
	for i := range a {
		if i < len(b) && a[i] != b[i] {
			n++
		}
	}
	return n
}
