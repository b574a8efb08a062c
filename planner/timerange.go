package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	dateLayout = "2006-01-02"
	openEnd    = ".."
)

// ErrInvalidTimeRange is returned when the time range cannot be parsed
type ErrInvalidTimeRange struct {
	Value  string
	Reason string
}

func (e *ErrInvalidTimeRange) Error() string {
	return fmt.Sprintf("invalid time range '%s': %s. Use 'YYYY-MM-DD/YYYY-MM-DD' (e.g. '2024-06-01/2024-06-30')", e.Value, e.Reason)
}

// TimeRange is a closed interval of time. A nil bound is open.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// DefaultTimeRange returns the last days before now
func DefaultTimeRange(now time.Time, days int) TimeRange {
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)
	return TimeRange{Start: &start, End: &end}
}

// ParseTimeRange parses "start/end", "date", "../end" or "start/.."
func ParseTimeRange(s string) (TimeRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: "empty"}
	}
	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: "expecting at most one '/'"}
	}
	var tr TimeRange
	var err error
	if tr.Start, err = parseBound(parts[0]); err != nil {
		return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: err.Error()}
	}
	if len(parts) == 1 {
		if tr.Start == nil {
			return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: "a single date cannot be open"}
		}
		// A single date covers the whole day if no time is given
		end := *tr.Start
		if isDate(end) {
			end = end.Add(24*time.Hour - time.Second)
		}
		tr.End = &end
		return tr, nil
	}
	if tr.End, err = parseBound(parts[1]); err != nil {
		return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: err.Error()}
	}
	if tr.Start == nil && tr.End == nil {
		return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: "both ends are open"}
	}
	if tr.Start != nil && tr.End != nil && tr.End.Before(*tr.Start) {
		return TimeRange{}, &ErrInvalidTimeRange{Value: s, Reason: "end is before start"}
	}
	return tr, nil
}

func parseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == openEnd {
		return nil, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("cannot parse '%s'", s)
	}
	t = t.UTC()
	return &t, nil
}

func isDate(t time.Time) bool {
	return t.Equal(t.Truncate(24 * time.Hour))
}

func formatBound(t *time.Time) string {
	if t == nil {
		return openEnd
	}
	if isDate(*t) {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

// String returns the interval as "start/end" (dates when possible, RFC3339 otherwise)
func (tr TimeRange) String() string {
	if tr.Start != nil && tr.End != nil && isDate(*tr.Start) && tr.End.Sub(*tr.Start) == 24*time.Hour-time.Second {
		return tr.Start.Format(dateLayout)
	}
	return formatBound(tr.Start) + "/" + formatBound(tr.End)
}

// Datetime returns the interval as a STAC search datetime: RFC3339 bounds, a date end bound covering the whole day
func (tr TimeRange) Datetime() string {
	start, end := openEnd, openEnd
	if tr.Start != nil {
		start = tr.Start.Format(time.RFC3339)
	}
	if tr.End != nil {
		e := *tr.End
		if isDate(e) {
			e = e.Add(24*time.Hour - time.Second)
		}
		end = e.Format(time.RFC3339)
	}
	return start + "/" + end
}

// Contains returns true if t is in the closed interval
func (tr TimeRange) Contains(t time.Time) bool {
	if tr.Start != nil && t.Before(*tr.Start) {
		return false
	}
	if tr.End != nil {
		end := *tr.End
		if isDate(end) {
			// A date end bound includes the whole day
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		if t.After(end) {
			return false
		}
	}
	return true
}
