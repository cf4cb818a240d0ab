// Package schedule parses the poll schedule of the relay loop.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes the normalized kind of a schedule string.
type Kind int

const (
	Interval Kind = iota
	Cron
)

// Spec is a parsed poll schedule.
//
// Supported forms:
//   - Seconds: "90" (the historical check_sleep setting)
//   - Go duration: "90s", "2m30s"
//   - HH:MM interval: "00:05" (five minutes)
//   - Cron: "*/2 * * * *", "@every 90s", "0 */5 8-18 * * MON-FRI" (optional seconds field)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type Spec struct {
	Kind   Kind
	Every  time.Duration
	Cron   string
	Source string // "seconds" | "duration" | "hhmm" | "cron"

	sched cron.Schedule
}

var (
	reHHMM    = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	reSeconds = regexp.MustCompile(`^\d+$`)

	parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Parse parses raw into a Spec.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	sp, err := parseInterval(s)
	if err != nil {
		return Spec{}, fmt.Errorf(
			"invalid schedule %q (use seconds like '90', a duration like '90s', HH:MM like '00:05', or cron like '*/2 * * * *')",
			raw,
		)
	}
	return sp, nil
}

// MustParse is Parse for constants.
func MustParse(raw string) Spec {
	sp, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return sp
}

func parseCron(expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron schedule required")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Kind: Cron, Cron: expr, Source: "cron", sched: sched}, nil
}

func parseInterval(v string) (Spec, error) {
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	var (
		d   time.Duration
		src string
	)
	switch {
	case reSeconds.MatchString(v):
		n, err := strconv.Atoi(v)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid seconds %q: %w", v, err)
		}
		d, src = time.Duration(n)*time.Second, "seconds"
	case reHHMM.MatchString(v):
		var err error
		if d, err = parseHHMM(v); err != nil {
			return Spec{}, err
		}
		src = "hhmm"
	default:
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Spec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '90s')", v)
		}
		src = "duration"
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: Interval, Every: d, Source: src}, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// Next returns when the poll after one finishing at now should start.
func (s Spec) Next(now time.Time) time.Time {
	if s.Kind == Cron && s.sched != nil {
		return s.sched.Next(now)
	}
	return now.Add(s.Every)
}

func (s Spec) String() string {
	if s.Kind == Cron {
		return "cron:" + s.Cron
	}
	return s.Every.String()
}
