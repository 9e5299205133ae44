package analyzer

// ExpandDate returns the date value plus its year and year-month prefixes,
// so that "1952" matches an indexed "1952-10-07". Non-date-shaped values are
// returned unchanged.
func ExpandDate(value string) []string {
	out := []string{value}
	if len(value) >= 7 && value[4] == '-' {
		out = append(out, value[:7])
	}
	if len(value) >= 4 && isYear(value[:4]) {
		if len(value) > 4 {
			out = append(out, value[:4])
		}
	}
	return dedupe(out)
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
