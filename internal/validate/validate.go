// Package validate holds small, dependency-backed validators used at
// configuration-load time so malformed input is fatal at startup rather
// than discovered mid-run.
package validate

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronExpression reports whether expr is a valid five-field cron
// expression or one of the standard descriptors (@hourly, @daily, ...).
func CronExpression(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// ParseCron parses expr into a cron.Schedule, backing the maintenance
// job's schedule (SPEC_FULL.md's DOMAIN STACK section). The tick clock
// itself does not use cron syntax; this only governs auxiliary jobs.
func ParseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression must not be empty")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Timezone reports whether tz names a loadable IANA time zone. An empty
// string is treated as UTC.
func Timezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return nil
}
