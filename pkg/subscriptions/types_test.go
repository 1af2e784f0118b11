package subscriptions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())

	assert.False(t, StatusDraft.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusPending, StatusActive, StatusPaused, StatusCancelled, StatusCompleted} {
		assert.True(t, s.IsValid(), "status %q", s)
	}
	assert.False(t, Status("archived").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestFrequencyStep(t *testing.T) {
	tests := []struct {
		freq   Frequency
		days   int
		months int
	}{
		{FrequencyWeekly, 7, 0},
		{FrequencyBiweekly, 14, 0},
		{FrequencyMonthly, 0, 1},
		{FrequencyQuarterly, 0, 3},
		{FrequencySemiannual, 0, 6},
		{FrequencyAnnual, 0, 12},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			days, months := tt.freq.Step()
			assert.Equal(t, tt.days, days)
			assert.Equal(t, tt.months, months)
		})
	}
}

func TestFrequencyIsValid(t *testing.T) {
	assert.True(t, FrequencyWeekly.IsValid())
	assert.True(t, FrequencyAnnual.IsValid())
	assert.False(t, Frequency("daily").IsValid())
	assert.False(t, Frequency("").IsValid())
}

func TestBillingModelIsValid(t *testing.T) {
	assert.True(t, BillingPrepay.IsValid())
	assert.True(t, BillingPerVisit.IsValid())
	assert.True(t, BillingHybrid.IsValid())
	assert.False(t, BillingModel("postpaid").IsValid())
}
