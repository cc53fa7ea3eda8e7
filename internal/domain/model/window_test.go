package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWindow_ExpandsToWholeDays(t *testing.T) {
	w := NewWindow(
		time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 1, 0, 0, 0, time.UTC),
	)

	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2026, 1, 12, 23, 59, 59, 999999999, time.UTC), w.To)
	assert.Equal(t, 3, w.Days())
}

func TestNewWindow_ConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*60*60)
	w := NewWindow(time.Date(2026, 1, 10, 2, 0, 0, 0, zone), time.Date(2026, 1, 10, 2, 0, 0, 0, zone))

	assert.Equal(t, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, 1, w.Days())
}

func TestWindow_Contains(t *testing.T) {
	w := NewWindow(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	assert.True(t, w.Contains(w.From), "lower bound inclusive")
	assert.True(t, w.Contains(w.To), "upper bound inclusive")
	assert.False(t, w.Contains(w.From.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.To.Add(time.Nanosecond)))
}

func TestWindow_Previous(t *testing.T) {
	w := NewWindow(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC))
	prev := w.Previous()

	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), prev.From)
	assert.Equal(t, w.From.Add(-time.Nanosecond), prev.To)
	assert.Equal(t, w.Days(), prev.Days())
}

func TestWindow_DayKeys(t *testing.T) {
	w := NewWindow(time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"2026-01-30", "2026-01-31", "2026-02-01", "2026-02-02"}, w.DayKeys())

	assert.Nil(t, Window{From: w.To, To: w.From}.DayKeys())
}

func TestWindow_InvertedDays(t *testing.T) {
	w := Window{From: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 1, w.Days())
}

func TestTrends_Dense(t *testing.T) {
	w := NewWindow(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	sparse := Trends{"2026-01-02": {Deployments: &DeploymentCount{Count: 4}}}

	dense := sparse.Dense(w)

	assert.Len(t, dense, 3)
	assert.Equal(t, 4, dense["2026-01-02"].Deployments.Count)
	assert.NotNil(t, dense["2026-01-01"].LeadTime)
	assert.Zero(t, dense["2026-01-03"].Deployments.Count)
	assert.Len(t, sparse, 1, "receiver untouched")
}

func TestParseBranchMode(t *testing.T) {
	tests := []struct {
		in      string
		want    BranchMode
		wantErr bool
	}{
		{"prod", BranchModeProd, false},
		{" Stage ", BranchModeStage, false},
		{"DEV", BranchModeDev, false},
		{"custom", BranchModeCustom, false},
		{"", BranchModeAll, false},
		{"qa", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBranchMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeploymentFrequencyStats_RateIn(t *testing.T) {
	s := DeploymentFrequencyStats{AvgDaily: 1, AvgWeekly: 7, AvgMonthly: 30}
	assert.InDelta(t, 1, s.RateIn(FrequencyDay), 0)
	assert.InDelta(t, 7, s.RateIn(FrequencyWeek), 0)
	assert.InDelta(t, 30, s.RateIn(FrequencyMonth), 0)
}

func TestIncident_Resolved(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	later := created.Add(90 * time.Minute)
	earlier := created.Add(-time.Minute)

	assert.False(t, Incident{CreationDate: created}.Resolved())
	assert.False(t, Incident{CreationDate: created, ResolvedDate: &earlier}.Resolved())

	inc := Incident{CreationDate: created, ResolvedDate: &later}
	assert.True(t, inc.Resolved())
	assert.InDelta(t, 5400, inc.RecoverySeconds(), 0)
}
