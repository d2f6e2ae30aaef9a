package scheduler

import (
	"fmt"
	"strings"
)

// ParseWhen converts natural schedule phrasing into a Schedule:
//
//	"at 14:30"      -> daily at 14:30
//	"every 30m"     -> every 30 minutes
//	"0 9 * * 1"     -> raw cron expression
func ParseWhen(when string) (Schedule, error) {
	w := strings.TrimSpace(when)
	if w == "" {
		return Schedule{}, fmt.Errorf("empty schedule")
	}

	lower := strings.ToLower(w)
	switch {
	case strings.HasPrefix(lower, "at "):
		return Schedule{Type: ScheduleAt, Expression: strings.TrimSpace(w[3:])}, nil
	case strings.HasPrefix(lower, "every "):
		return Schedule{Type: ScheduleEvery, Expression: strings.TrimSpace(w[6:])}, nil
	default:
		if len(strings.Fields(w)) == 5 {
			return Schedule{Type: ScheduleCron, Expression: w}, nil
		}
		return Schedule{}, fmt.Errorf("unrecognized schedule %q (use \"at HH:MM\", \"every <duration>\", or a cron expression)", when)
	}
}
