package release

import (
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard 5-field cron expressions plus the
// @hourly/@daily descriptors.
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a parsed cron expression driving periodic update checks.
type Schedule struct {
	expr     string
	schedule cron.Schedule
}

// ParseSchedule parses a cron expression, e.g. "0 */6 * * *" or "@daily".
func ParseSchedule(expr string) (*Schedule, error) {
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Schedule{expr: expr, schedule: schedule}, nil
}

// Next returns the first activation strictly after the given time.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.schedule.Next(after)
}

// Expression returns the expression the schedule was parsed from.
func (s *Schedule) Expression() string {
	return s.expr
}

// ValidateSchedule reports whether expr is a parseable cron expression.
func ValidateSchedule(expr string) error {
	_, err := scheduleParser.Parse(expr)
	return err
}
