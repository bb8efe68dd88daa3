package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/scheduler"
)

const startAtLayout = "2006-01-02 15:04"

var (
	errStartAtFormat = errors.New("invalid --start-at format, expected YYYY-MM-DD HH:MM")
	errStartInFormat = errors.New("invalid --start-in duration, expected a duration like 2h, 30m or 1h30m")
	errStartFlags    = errors.New("flags --start-at, --start-in and --cron are mutually exclusive")
)

func parseStartAt(value string) (time.Time, error) {
	t, err := time.ParseInLocation(startAtLayout, value, time.Local)
	if err != nil {
		return time.Time{}, errStartAtFormat
	}
	return t, nil
}

func parseStartIn(value string, now time.Time) (time.Time, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, errStartInFormat
	}
	return now.Add(d), nil
}

// validateSchedule accepts 5-field cron expressions with an occurrence
// within a year of now.
func validateSchedule(expr string, now time.Time) error {
	if len(strings.Fields(expr)) != 5 {
		return fmt.Errorf("invalid cron expression %q, expected 5-field format (minute hour day-of-month month day-of-week)", expr)
	}
	_, err := scheduler.NextCronOccurrence(expr, now)
	return err
}

// applySchedule sets the delayed start of p from the start flags. A
// start time in the past yields an immediate start and a warning.
func applySchedule(p *common.StartRunParams, startAt, startIn, cron string, now time.Time) (warning string, err error) {
	set := 0
	for _, v := range []string{startAt, startIn, cron} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return "", errStartFlags
	}

	var at time.Time
	switch {
	case startAt != "":
		at, err = parseStartAt(startAt)
	case startIn != "":
		at, err = parseStartIn(startIn, now)
	case cron != "":
		if err := validateSchedule(cron, now); err != nil {
			return "", err
		}
		p.Cron = cron
		return "", nil
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !at.After(now) {
		return "warning: scheduled time is in the past, starting immediately", nil
	}
	p.StartAt = at.UnixMilli()
	return "", nil
}
