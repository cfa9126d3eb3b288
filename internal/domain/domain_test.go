package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}

func TestAmountRule_Allows(t *testing.T) {
	exact := AmountRule{Exact: 5000}
	assert.True(t, exact.Allows(5000))
	assert.False(t, exact.Allows(3000))
	assert.False(t, exact.Allows(0))

	ranged := AmountRule{Min: 500, Max: 1000}
	assert.True(t, ranged.Allows(500))
	assert.True(t, ranged.Allows(1000))
	assert.False(t, ranged.Allows(499))
	assert.False(t, ranged.Allows(1001))

	assert.False(t, AmountRule{}.Allows(-1))
	assert.True(t, AmountRule{}.Allows(1))
}

func TestParseCurrency(t *testing.T) {
	c, ok := ParseCurrency(" kes ")
	assert.True(t, ok)
	assert.Equal(t, CurrencyKES, c)
	assert.Equal(t, int32(2), c.Exponent())
	assert.Equal(t, int32(0), CurrencyUGX.Exponent())

	_, ok = ParseCurrency("USD")
	assert.False(t, ok)
}

func TestValidSubscriber(t *testing.T) {
	assert.True(t, ValidSubscriber("00254712345678"))
	assert.True(t, ValidSubscriber("00256772123456"))
	assert.False(t, ValidSubscriber("254712345678"))
	assert.False(t, ValidSubscriber("+254712345678"))
	assert.False(t, ValidSubscriber("0025471234"))
	assert.False(t, ValidSubscriber("002547123abc78"))
}

func TestOutcome_Status(t *testing.T) {
	s, terminal := OutcomeCompleted.Status()
	assert.True(t, terminal)
	assert.Equal(t, StatusCompleted, s)

	s, terminal = OutcomeFailed.Status()
	assert.True(t, terminal)
	assert.Equal(t, StatusFailed, s)

	_, terminal = OutcomePending.Status()
	assert.False(t, terminal)
	assert.False(t, Outcome("refunded").Valid())
}

func TestCredential_Valid(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cred := &Credential{Token: "abc", ExpiresAt: now.Add(time.Hour)}

	assert.True(t, cred.Valid(now, time.Minute))
	assert.False(t, cred.Valid(now.Add(59*time.Minute), time.Minute))
	assert.False(t, (&Credential{ExpiresAt: now.Add(time.Hour)}).Valid(now, 0))

	var missing *Credential
	assert.False(t, missing.Valid(now, 0))
}
