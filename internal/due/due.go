// Package due decides whether a dated task has reached its due instant.
package due

import (
	"fmt"
	"time"

	"duewatch/internal/config"
)

const instantLayout = "2006-01-02 15:04"

// Evaluator combines a task's date/time with the deployment default time
// and timezone. The zero Location means UTC; Now defaults to time.Now.
type Evaluator struct {
	Location    *time.Location
	DefaultTime string
	Now         func() time.Time
}

func (e Evaluator) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

func (e Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now().In(e.loc())
	}
	return time.Now().In(e.loc())
}

// At computes the due instant for a date and optional clock time. An empty
// clock falls back to the configured default. A token that matched the
// syntactic pattern but is not a real calendar date or time errors here.
func (e Evaluator) At(date, clock string) (time.Time, error) {
	if clock == "" {
		clock = e.DefaultTime
	}
	ts, err := time.ParseInLocation(instantLayout, date+" "+clock, e.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("bad due timestamp %q: %w", date+" "+clock, err)
	}
	return ts, nil
}

// Due reports whether now is at or after the task's due instant.
func (e Evaluator) Due(date, clock string) (bool, error) {
	at, err := e.At(date, clock)
	if err != nil {
		return false, err
	}
	return !e.now().Before(at), nil
}

// WindowOpen reports whether now's clock time has reached the daily default
// notification time. A run landing before the window opens belongs to the
// new day's pre-notification slot and must reset the ledger instead of
// scanning.
func (e Evaluator) WindowOpen() (bool, error) {
	def, err := time.Parse(config.ClockLayout, e.DefaultTime)
	if err != nil {
		return false, fmt.Errorf("bad default notification time %q: %w", e.DefaultTime, err)
	}
	now := e.now()
	return now.Hour()*60+now.Minute() >= def.Hour()*60+def.Minute(), nil
}
