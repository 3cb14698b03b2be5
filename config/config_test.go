package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCODPolicyIsValid(t *testing.T) {
	require.NoError(t, DefaultCODPolicy().Validate())
}

func TestCODPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *CODPolicy)
	}{
		{"zero verification ceiling", func(p *CODPolicy) { p.MaxVerificationAttempts = 0 }},
		{"high value ceiling lower", func(p *CODPolicy) { p.MaxVerificationAttemptsHighVal = 2 }},
		{"zero delivery ceiling", func(p *CODPolicy) { p.MaxDeliveryAttempts = 0 }},
		{"negative threshold", func(p *CODPolicy) { p.HighValueThreshold = decimal.NewFromInt(-1) }},
		{"zero redelivery days", func(p *CODPolicy) { p.RedeliveryBusinessDays = 0 }},
		{"dispatch hour", func(p *CODPolicy) { p.DispatchHour = 24 }},
		{"retry interval", func(p *CODPolicy) { p.VerificationRetryInterval = 0 }},
		{"no location", func(p *CODPolicy) { p.Location = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultCODPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestEnvGetters(t *testing.T) {
	t.Setenv("TEST_DEC", "1250.50")
	t.Setenv("TEST_BAD_DEC", "abc")
	t.Setenv("TEST_LIST", " a:9092, ,b:9092 ")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_TZ", "Not/AZone")

	assert.True(t, getDecimalEnv("TEST_DEC", decimal.Zero).Equal(decimal.RequireFromString("1250.5")))
	assert.True(t, getDecimalEnv("TEST_BAD_DEC", decimal.NewFromInt(7)).Equal(decimal.NewFromInt(7)))
	assert.Equal(t, []string{"a:9092", "b:9092"}, getListEnv("TEST_LIST"))
	assert.Nil(t, getListEnv("TEST_LIST_MISSING"))
	assert.False(t, getBoolEnv("TEST_BOOL", true))
	assert.Equal(t, time.UTC, getLocationEnv("TEST_TZ", "UTC"))
}
