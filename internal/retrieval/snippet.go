package retrieval

import "strings"

// snippetAround returns a short window of text centered on the first
// occurrence of query (or its first term), falling back to a leading
// substring when nothing matches.
func snippetAround(text, query string) string {
	const window = 160
	if text == "" {
		return text
	}
	lt := strings.ToLower(text)
	q := strings.ToLower(strings.TrimSpace(query))
	idx := -1
	if q != "" {
		idx = strings.Index(lt, q)
		if idx == -1 {
			for _, p := range strings.Fields(q) {
				if i := strings.Index(lt, p); i != -1 {
					idx = i
					break
				}
			}
		}
	}
	if idx == -1 {
		if len(text) > window {
			return text[:window]
		}
		return text
	}
	start := idx - 60
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
