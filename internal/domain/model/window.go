package model

import "time"

// DayKeyLayout is the ISO date layout used to key trend buckets.
const DayKeyLayout = "2006-01-02"

// Window is an inclusive time range [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow expands from and to to whole UTC days: From becomes the start of
// its day and To the last nanosecond of its day.
func NewWindow(from, to time.Time) Window {
	from = from.UTC()
	to = to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return Window{From: start, To: end}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Days returns the number of calendar days spanned, never less than 1.
// A window covering a single full day counts as 1.
func (w Window) Days() int {
	if w.To.Before(w.From) {
		return 1
	}
	return int(w.To.Sub(w.From)/(24*time.Hour)) + 1
}

// Previous returns the window of equal duration ending immediately before From.
func (w Window) Previous() Window {
	d := w.To.Sub(w.From)
	to := w.From.Add(-time.Nanosecond)
	return Window{From: to.Add(-d), To: to}
}

// DayKeys lists every UTC calendar day touched by the window, in order.
func (w Window) DayKeys() []string {
	if w.To.Before(w.From) {
		return nil
	}
	from := w.From.UTC()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	var keys []string
	for !day.After(w.To) {
		keys = append(keys, day.Format(DayKeyLayout))
		day = day.AddDate(0, 0, 1)
	}
	return keys
}

// DayKey returns the trend bucket key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}
