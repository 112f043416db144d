// Package reference formats the human-readable identifiers of requests and combined requests.
package reference

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	dayLayout       = "20060102"
	timestampLayout = "20060102150405"
)

var requestPattern = regexp.MustCompile(`^REQ-(\d{8})-(\d{4,})$`)

// DayKey returns the sequence bucket for a request created at t
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// Request formats REQ-YYYYMMDD-NNNN
func Request(t time.Time, seq int) string {
	return fmt.Sprintf("REQ-%s-%04d", DayKey(t), seq)
}

// Combined formats CMB-YYYYMMDDHHmmss
func Combined(t time.Time) string {
	return "CMB-" + t.Format(timestampLayout)
}

// ParseRequest splits a request reference into its day key and sequence
func ParseRequest(ref string) (day string, seq int, err error) {
	m := requestPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", 0, fmt.Errorf("invalid request reference: %q", ref)
	}
	if _, err := time.Parse(dayLayout, m[1]); err != nil {
		return "", 0, fmt.Errorf("invalid request reference date: %q", ref)
	}
	seq, err = strconv.Atoi(m[2])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("invalid request reference sequence: %q", ref)
	}
	return m[1], seq, nil
}

// LotTitle prefixes a lot title with its number
func LotTitle(lotNumber int, title string) string {
	return fmt.Sprintf("LOT-%d: %s", lotNumber, title)
}
