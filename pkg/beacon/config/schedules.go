package config

import (
	"time"

	"github.com/tmorell/beacon/pkg/beacon/schedule"
)

// IntervalFor builds an interval schedule from a config section:
//
//	every: 30s
//	start_immediately: true
//	align_to_minute: false
func IntervalFor(c Config) schedule.Interval {
	return schedule.Interval{
		Every:            c.Duration("every", time.Minute),
		StartImmediately: c.Bool("start_immediately", false),
		AlignToMinute:    c.Bool("align_to_minute", false),
	}
}

// CronFor builds a cron schedule from a config section:
//
//	expression: "0 9 * * 1-5"
//	timezone: America/New_York
func CronFor(c Config) schedule.Cron {
	return schedule.Cron{
		Expression: c.String("expression", ""),
		Timezone:   c.String("timezone", ""),
	}
}

// WatchFor builds a watch schedule from a config section:
//
//	query: "SELECT * FROM alerts WHERE ack = 0"
//	params: []
//	check_interval: 5s
//	detect_changes: true
func WatchFor(c Config) schedule.Watch {
	return schedule.Watch{
		Query:         c.String("query", ""),
		Params:        c.Slice("params", nil),
		CheckInterval: c.Duration("check_interval", 5*time.Second),
		DetectChanges: c.Bool("detect_changes", false),
	}
}
