package items

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotANumber is returned when a state has no leading integer.
var ErrNotANumber = errors.New("state is not a number")

// ParseInt reads the leading integer of a state such as "45", "45.7" or "80 %".
// Anything after the digits is ignored.
func ParseInt(state string) (int, error) {
	s := strings.TrimSpace(state)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, ErrNotANumber
	}
	return strconv.Atoi(s[:end])
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
}

// ParseDateTime parses a DateTime item state, e.g. "2024-06-01T05:12:00.000+0200" or
// RFC 3339. A trailing zone name in brackets ("...+02:00[Europe/Berlin]") is ignored.
func ParseDateTime(state string) (time.Time, error) {
	s := strings.TrimSpace(state)
	if i := strings.IndexByte(s, '['); i > 0 {
		s = s[:i]
	}

	var lastErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
