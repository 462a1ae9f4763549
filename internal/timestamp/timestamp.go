package timestamp

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format names the file name shape a timestamp was read from.
type Format string

const (
	FormatExtended  Format = "extended-timestamp"
	FormatDelimited Format = "delimited-time"
	FormatDateOnly  Format = "date-only"
	FormatCompact   Format = "compact"
	FormatDayMonth  Format = "day-month"
)

// TokenLayout is the layout of Result.Token.
const TokenLayout = "2006-01-02_15-04-05"

// ErrNoDate is returned when no supported shape yields a valid date.
var ErrNoDate = errors.New("no recording date in file name")

// Result is a parsed recording time.
type Result struct {
	Time   time.Time
	Format Format
	Token  string
}

type shape struct {
	format  Format
	pattern *regexp.Regexp
	build   func(m []string) (time.Time, bool)
}

var shapes = []shape{
	{
		format:  FormatExtended,
		pattern: regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})Z?`),
		build: func(m []string) (time.Time, bool) {
			return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]))
		},
	},
	{
		format:  FormatDelimited,
		pattern: regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})_(\d{2})-(\d{2})-(\d{2})`),
		build: func(m []string) (time.Time, bool) {
			return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]))
		},
	},
	{
		format:  FormatDateOnly,
		pattern: regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
		build: func(m []string) (time.Time, bool) {
			return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, 0, 0)
		},
	},
	{
		format:  FormatCompact,
		pattern: regexp.MustCompile(`(?:^|\D)(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})(?:\D|$)`),
		build: func(m []string) (time.Time, bool) {
			return civil(2000+atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), 0)
		},
	},
	{
		format:  FormatDayMonth,
		pattern: regexp.MustCompile(`(?i)(?:^|[^0-9])(\d{1,2})_(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)_(\d{2})(?:[^0-9]|$)`),
		build: func(m []string) (time.Time, bool) {
			month, ok := monthByAbbrev[strings.ToLower(m[2])]
			if !ok {
				return time.Time{}, false
			}
			return civil(2000+atoi(m[3]), int(month), atoi(m[1]), 0, 0, 0)
		},
	},
}

var monthByAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// Parse reads the recording time from a file name. Directory components are
// ignored. Shapes are tried in order; a shape that matches with impossible
// calendar values is skipped.
func Parse(name string) (Result, error) {
	base := filepath.Base(name)
	var rejected []string
	for _, s := range shapes {
		m := s.pattern.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		t, ok := s.build(m)
		if !ok {
			rejected = append(rejected, fmt.Sprintf("%s %q", s.format, strings.Trim(m[0], "_-. ")))
			continue
		}
		return Result{Time: t, Format: s.format, Token: t.Format(TokenLayout)}, nil
	}
	if len(rejected) > 0 {
		return Result{}, fmt.Errorf("%w: %s: invalid %s", ErrNoDate, base, strings.Join(rejected, ", "))
	}
	return Result{}, fmt.Errorf("%w: %s", ErrNoDate, base)
}

// civil validates the fields against the calendar, rejecting values that
// time.Date would silently normalize (month 13, February 30).
func civil(year, month, day, hour, minute, second int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}

// In reinterprets a parsed wall-clock time in loc without shifting the
// clock reading.
func (r Result) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(r.Time.Year(), r.Time.Month(), r.Time.Day(),
		r.Time.Hour(), r.Time.Minute(), r.Time.Second(), 0, loc)
}
