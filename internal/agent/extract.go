package agent

import "strings"

// ExtractLastBlock returns the text between the last complete begin/end
// marker pair in s. Noisy backend output may contain several marker pairs
// (echoed prompts, partial retries); only the last complete pair is
// authoritative. Returns ok=false when no complete pair exists.
func ExtractLastBlock(s, begin, end string) (string, bool) {
	search := s
	for {
		beginIdx := strings.LastIndex(search, begin)
		if beginIdx < 0 {
			return "", false
		}

		rest := search[beginIdx+len(begin):]
		if endIdx := strings.Index(rest, end); endIdx >= 0 {
			return rest[:endIdx], true
		}

		// Dangling begin marker without an end: retry with earlier pairs.
		search = search[:beginIdx]
	}
}
