package notifier

import "testing"

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name      string
		errorOnly bool
		keywords  []string
		isError   bool
		body      string
		want      bool
	}{
		{"error_only skips success", true, nil, false, "all good", false},
		{"error_only allows error", true, nil, true, "boom", true},
		{"no keywords matches anything", false, nil, false, "anything", true},
		{"keyword match", false, []string{"timeout"}, false, "request Timeout after 30s", true},
		{"keyword no match", false, []string{"timeout"}, false, "ok", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldNotify(tt.errorOnly, tt.keywords, tt.isError, tt.body); got != tt.want {
				t.Errorf("ShouldNotify() = %v, want %v", got, tt.want)
			}
		})
	}
}
