package diagnostics

// Levenshtein computes the edit distance between two strings, counting
// insertions, deletions and substitutions.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// ClosestMatch finds the candidate nearest to name within the suggestion
// threshold: distance at most 2, or at most ceil(len(name)/3) for longer
// names. Returns "" when nothing is close enough. Exact matches are skipped
// since a name identical to a candidate needs no suggestion.
func ClosestMatch(name string, candidates []string) string {
	limit := 2
	if t := (len(name) + 2) / 3; t > limit {
		limit = t
	}

	best := ""
	bestDist := limit + 1
	for _, c := range candidates {
		if c == name {
			continue
		}
		d := Levenshtein(name, c)
		if d < bestDist {
			best = c
			bestDist = d
		}
	}
	if bestDist > limit {
		return ""
	}
	return best
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
