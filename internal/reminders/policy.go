package reminders

import (
	"math"
	"strings"
	"time"

	"github.com/agenciateixeira/t3-sub001/internal/models"
)

// Kind classifies how urgent a task's due date is relative to now.
type Kind string

const (
	KindNone        Kind = "none"
	KindDueToday    Kind = "due_today"
	KindDueTomorrow Kind = "due_tomorrow"
	KindDueInHours  Kind = "due_in_hours"
	KindOverdue     Kind = "overdue"
)

// Decision is the outcome of evaluating one task.
type Decision struct {
	Kind          Kind
	Hours         int // whole hours until due, rounded up; only set for KindDueInHours
	HoursUntilDue float64
	DueAt         time.Time
}

// Actionable reports whether the decision calls for a reminder.
func (d Decision) Actionable() bool {
	return d.Kind != KindNone && d.Kind != ""
}

// DueAt combines a task's due date and optional due time in loc.
// The date part is taken at face value; a missing or malformed time means midnight.
func DueAt(task models.Task, loc *time.Location) (time.Time, bool) {
	if task.DueDate == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	year, month, day := task.DueDate.Date()
	hour, minute, second := 0, 0, 0
	if task.DueTime != nil {
		if clock, ok := parseClock(*task.DueTime); ok {
			hour, minute, second = clock.Hour(), clock.Minute(), clock.Second()
		}
	}
	return time.Date(year, month, day, hour, minute, second, 0, loc), true
}

// Evaluate applies the reminder policy to a task at instant now.
func Evaluate(task models.Task, now time.Time, loc *time.Location) Decision {
	if loc == nil {
		loc = time.UTC
	}
	due, ok := DueAt(task, loc)
	if !ok {
		return Decision{Kind: KindNone}
	}

	hours := due.Sub(now).Hours()
	decision := Decision{Kind: KindNone, HoursUntilDue: hours, DueAt: due}

	switch {
	case hours > 0 && hours <= 24:
		localNow := now.In(loc)
		switch {
		case sameDay(due, localNow):
			decision.Kind = KindDueToday
		case sameDay(due, localNow.AddDate(0, 0, 1)):
			decision.Kind = KindDueTomorrow
		default:
			decision.Kind = KindDueInHours
			decision.Hours = int(math.Ceil(hours))
		}
	case hours < 0:
		decision.Kind = KindOverdue
	}
	return decision
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func parseClock(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
