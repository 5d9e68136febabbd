package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmorell/beacon/pkg/beacon/event"
	"github.com/tmorell/beacon/pkg/beacon/schedule"
)

func TestIntervalConstructors(t *testing.T) {
	assert.Equal(t, 30*time.Second, schedule.Every(30*time.Second).Every)
	assert.Equal(t, 90*time.Second, schedule.EveryMinutes(1.5).Every)
	assert.Equal(t, 2*time.Hour, schedule.EveryHours(2).Every)
}

func TestCronNext(t *testing.T) {
	// Weekdays at 09:00.
	c := schedule.Cron{Expression: "0 9 * * 1-5", Timezone: "UTC"}

	// A Friday afternoon rolls over to Monday morning.
	friday := time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC)
	next, err := c.Next(friday)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())

	// A Monday before 09:00 fires the same day.
	monday := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	next, err = c.Next(monday)
	require.NoError(t, err)
	assert.Equal(t, monday.Day(), next.Day())
	assert.Equal(t, 9, next.Hour())
}

func TestCronTimezone(t *testing.T) {
	c := schedule.Cron{Expression: "30 14 * * *", Timezone: "America/New_York"}

	after := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	next, err := c.Next(after)
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := next.In(ny)
	assert.Equal(t, 14, local.Hour())
	assert.Equal(t, 30, local.Minute())
}

func TestCronInvalidExpression(t *testing.T) {
	_, err := schedule.Cron{Expression: "not a cron"}.Next(time.Now())
	assert.Error(t, err)

	_, err = schedule.Cron{Expression: "0 9 * * *", Timezone: "Mars/Olympus"}.Next(time.Now())
	assert.Error(t, err)
}

func TestCronConstructors(t *testing.T) {
	assert.Equal(t, "30 9 * * *", schedule.DailyAt(9, 30).Expression)
	assert.Equal(t, "0 18 * * 5", schedule.WeeklyAt(time.Friday, 18, 0).Expression)
	assert.Equal(t, "15 * * * *", schedule.Hourly(15).Expression)
}

func TestDuringHours(t *testing.T) {
	at := func(hour int) event.Event {
		return event.New(schedule.TypeInterval, schedule.Source, schedule.Tick{
			ExecutionTime: time.Date(2026, 3, 2, hour, 30, 0, 0, time.UTC),
		})
	}

	business := schedule.DuringHours(9, 17)
	assert.True(t, business.Evaluate(at(10)))
	assert.False(t, business.Evaluate(at(8)))
	assert.False(t, business.Evaluate(at(17)), "end bound is exclusive")

	overnight := schedule.DuringHours(22, 6)
	assert.True(t, overnight.Evaluate(at(23)))
	assert.True(t, overnight.Evaluate(at(3)))
	assert.False(t, overnight.Evaluate(at(12)))
}

func TestWeekdayConditions(t *testing.T) {
	onDay := func(day int) event.Event {
		return event.New(schedule.TypeCron, schedule.Source, schedule.CronTick{
			ExecutionTime: time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC),
		})
	}

	monday := onDay(2)
	saturday := onDay(7)

	assert.True(t, schedule.OnWeekdays().Evaluate(monday))
	assert.False(t, schedule.OnWeekdays().Evaluate(saturday))
	assert.False(t, schedule.OnWeekends().Evaluate(monday))
	assert.True(t, schedule.OnWeekends().Evaluate(saturday))
}

func TestWatchResultConditions(t *testing.T) {
	result := func(rows []map[string]any) event.Event {
		return event.New(schedule.TypeWatch, schedule.Source, schedule.WatchResult{
			Results:      rows,
			ResultsCount: len(rows),
		})
	}

	empty := result(nil)
	two := result([]map[string]any{{"status": "open"}, {"status": "closed"}})

	assert.False(t, schedule.HasResults().Evaluate(empty))
	assert.True(t, schedule.HasResults().Evaluate(two))
	assert.True(t, schedule.MinResults(2).Evaluate(two))
	assert.False(t, schedule.MinResults(3).Evaluate(two))
	assert.True(t, schedule.ResultEquals("status", "open").Evaluate(two))
	assert.False(t, schedule.ResultEquals("status", "escalated").Evaluate(two))
}
