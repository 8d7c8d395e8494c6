package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// US ZIP: 5 digits or ZIP+4
	reZIP      = regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$`)
	reState    = regexp.MustCompile(`^[A-Za-z]{2}$`)
	reCard     = regexp.MustCompile(`^[0-9]{16}$`)
	reCVV      = regexp.MustCompile(`^[0-9]{3,4}$`)
	reExpiry   = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2}|[0-9]{4})$`)
	reID       = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reCategory = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	reQ        = regexp.MustCompile(`^[A-Za-z0-9 _'-]{1,50}$`)
)

// Text trims s and accepts it when it is non-empty and at most max bytes.
func Text(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > max {
		return "", false
	}
	return s, true
}

// State is a two-letter code, returned upper-cased.
func State(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !reState.MatchString(s) {
		return "", false
	}
	return strings.ToUpper(s), true
}

func ZIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reZIP.MatchString(s)
}

// CardNumber accepts 16 digits, optionally grouped with spaces or dashes,
// and returns the bare digits.
func CardNumber(s string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if !reCard.MatchString(digits) {
		return "", false
	}
	return digits, true
}

func CVV(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reCVV.MatchString(s)
}

// Expiration parses MM/YY or MM/YYYY. A card is good through the last day
// of its month, so the current month still passes.
func Expiration(s string, now time.Time) (string, bool) {
	s = strings.TrimSpace(s)
	m := reExpiry.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if len(m[2]) == 2 {
		year += 2000
	}
	if year > now.Year() || (year == now.Year() && month >= int(now.Month())) {
		return s, true
	}
	return "", false
}

// ID validates a simple resource identifier (product ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Category validates a catalog category name, lower-casing it first.
func Category(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	return s, reCategory.MatchString(s)
}

// Q is a search keyword: letters, digits, spaces and a little punctuation,
// cut to 50 bytes.
func Q(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if len(s) > 50 {
		s = s[:50]
	}
	return s, reQ.MatchString(s)
}

// Delta parses a signed quantity change. Zero and values beyond ±99 are
// rejected.
func Delta(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 || n > 99 || n < -99 {
		return 0, false
	}
	return n, true
}
