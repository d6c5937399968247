package expand

import (
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestTimestampsShareOneCapturedNow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := Vars("[timestmp.10] [timestmp.13] [timestmp]", now)
	parts := strings.Fields(out)
	if len(parts) != 3 {
		t.Fatalf("expected 3 fields, got %q", out)
	}
	sec, _ := strconv.ParseInt(parts[0], 10, 64)
	ms, _ := strconv.ParseInt(parts[1], 10, 64)
	alias, _ := strconv.ParseInt(parts[2], 10, 64)
	if ms != alias {
		t.Fatalf("[timestmp] should alias [timestmp.13]: got %d vs %d", ms, alias)
	}
	if ms/1000 != sec {
		t.Fatalf("[timestmp.10] and [timestmp.13] should derive from the same instant: %d vs %d", sec, ms)
	}
}

func TestRandomRange(t *testing.T) {
	now := time.Now()
	for i := 0; i < 50; i++ {
		out := Vars("[random.1-5]", now)
		n, err := strconv.Atoi(out)
		if err != nil {
			t.Fatalf("expected numeric output, got %q", out)
		}
		if n < 1 || n > 5 {
			t.Fatalf("expected value in [1,5], got %d", n)
		}
	}
}

func TestRandomInvalidRangeLeftLiteral(t *testing.T) {
	out := Vars("[random.5-1]", time.Now())
	if out != "[random.5-1]" {
		t.Fatalf("expected literal passthrough for min>max, got %q", out)
	}
	out = Vars("[random.notanumber]", time.Now())
	if out != "[random.notanumber]" {
		t.Fatalf("expected literal passthrough for unparsable range, got %q", out)
	}
}

func TestGetenvPresentAndMissing(t *testing.T) {
	os.Setenv("TASKD_EXPAND_TEST_VAR", "hello")
	defer os.Unsetenv("TASKD_EXPAND_TEST_VAR")

	if out := Vars("[getenv.TASKD_EXPAND_TEST_VAR]", time.Now()); out != "hello" {
		t.Fatalf("expected \"hello\", got %q", out)
	}
	if out := Vars("[getenv.TASKD_EXPAND_TEST_MISSING]", time.Now()); out != "[getenv.TASKD_EXPAND_TEST_MISSING]" {
		t.Fatalf("expected literal passthrough for missing var, got %q", out)
	}
}
