package notifier

import "strings"

// ShouldNotify evaluates whether a message should be delivered given a
// policy's error_only/keyword filters. isError describes the outcome
// being reported (a failed task run, a 4xx/5xx probe response, ...).
// An empty keywords list matches everything; otherwise at least one
// keyword must appear in body (case-insensitive).
func ShouldNotify(errorOnly bool, keywords []string, isError bool, body string) bool {
	if errorOnly && !isError {
		return false
	}
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(body)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
