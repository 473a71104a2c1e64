package sfx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses a clip boundary. Accepted forms are "m:ss",
// "h:mm:ss", Go-style durations such as "1m30s", and plain seconds
// ("90", "1.5").
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("sfx: empty timestamp")
	}

	if strings.Contains(s, ":") {
		return parseClock(s)
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("sfx: negative timestamp %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("sfx: invalid timestamp %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("sfx: negative timestamp %q", s)
	}
	return d, nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("sfx: invalid timestamp %q", s)
	}

	var total time.Duration
	unit := time.Second
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		last := i == len(parts)-1
		var (
			v   float64
			err error
		)
		if last {
			v, err = strconv.ParseFloat(p, 64)
		} else {
			var n int
			n, err = strconv.Atoi(p)
			v = float64(n)
		}
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return 0, fmt.Errorf("sfx: invalid timestamp %q", s)
		}
		total += time.Duration(v * float64(unit))
		unit *= 60
	}
	return total, nil
}
