// Package expand implements the small variable-substitution language used
// by probe URLs, payloads and headers: [timestmp.10], [timestmp.13],
// [timestmp] (alias of .13), [random.A-B] and [getenv.NAME]. A reference
// that fails to parse (malformed random range, min>max) or that names a
// missing environment variable is left in the text unchanged rather than
// causing an error -- callers see the literal "[getenv.MISSING]" back.
package expand

import (
	"math/rand/v2"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timestmp10Re = regexp.MustCompile(`\[timestmp\.10\]`)
	timestmp13Re = regexp.MustCompile(`\[timestmp\.13\]`)
	timestmpRe   = regexp.MustCompile(`\[timestmp\]`)
	randomRe     = regexp.MustCompile(`\[random\.([^\]]+)\]`)
	getenvRe     = regexp.MustCompile(`\[getenv\.([^\]]+)\]`)
)

// Vars replaces every recognized [xxx] reference in text. All timestmp
// references in a single call share one captured instant, so
// [timestmp.10] and [timestmp.13] (and [timestmp], its alias) are always
// consistent with each other even though they format it differently.
func Vars(text string, now time.Time) string {
	sec := strconv.FormatInt(now.Unix(), 10)
	ms := strconv.FormatInt(now.UnixMilli(), 10)

	text = timestmp10Re.ReplaceAllString(text, sec)
	text = timestmp13Re.ReplaceAllString(text, ms)
	text = timestmpRe.ReplaceAllString(text, ms)

	text = randomRe.ReplaceAllStringFunc(text, replaceRandom)
	text = getenvRe.ReplaceAllStringFunc(text, replaceGetenv)
	return text
}

// replaceRandom resolves one "[random.A-B]" match. A or B may themselves
// be negative (e.g. "-5--1"); the split is at the first "-" after the
// optional leading sign of A, mirroring the two-part "min-max" parse the
// reference implementation uses.
func replaceRandom(match string) string {
	inner := randomRe.FindStringSubmatch(match)[1]
	minS, maxS, ok := splitRange(inner)
	if !ok {
		return match
	}
	lo, err1 := strconv.Atoi(minS)
	hi, err2 := strconv.Atoi(maxS)
	if err1 != nil || err2 != nil || lo > hi {
		return match
	}
	return strconv.Itoa(lo + rand.IntN(hi-lo+1))
}

// splitRange splits "A-B" into A and B, tolerating a leading "-" on A.
func splitRange(s string) (string, string, bool) {
	rest := s
	neg := false
	if strings.HasPrefix(rest, "-") {
		neg = true
		rest = rest[1:]
	}
	idx := strings.Index(rest, "-")
	if idx < 0 {
		return "", "", false
	}
	minPart := rest[:idx]
	maxPart := rest[idx+1:]
	if neg {
		minPart = "-" + minPart
	}
	if minPart == "" || maxPart == "" {
		return "", "", false
	}
	return minPart, maxPart, true
}

// replaceGetenv resolves one "[getenv.NAME]" match, leaving it unchanged
// if NAME is unset.
func replaceGetenv(match string) string {
	name := getenvRe.FindStringSubmatch(match)[1]
	v, ok := os.LookupEnv(name)
	if !ok {
		return match
	}
	return v
}
