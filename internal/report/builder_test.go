package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelrenew/panelrenew/internal/types"
)

func TestBuild_Claimed(t *testing.T) {
	b, err := New("https://panel.example/server/abc")
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, err := b.Build(&types.RunResult{
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Outcome:    types.OutcomeClaimed,
		Login: &types.LoginResult{
			Strategy: types.StrategyCookie,
			Attempts: []types.LoginAttempt{{Strategy: types.StrategyCookie, Status: types.AttemptSucceeded}},
		},
		Claim:       &types.ClaimResult{Outcome: types.OutcomeClaimed, AddTimePolls: 2},
		Screenshots: []string{"/tmp/shots/01-login.png", "/tmp/shots/02-claim.png"},
		AssetURL:    "https://example.com/bundle.zip",
	})
	require.NoError(t, err)

	assert.Equal(t, "panelrenew claimed - Mar 1 12:00 UTC", r.Subject)
	assert.Equal(t, "/tmp/shots/02-claim.png", r.Screenshot)
	assert.Equal(t, types.OutcomeClaimed, r.Outcome)

	assert.Contains(t, r.PlainBody, "server time extended")
	assert.Contains(t, r.PlainBody, "Login: cookie")
	assert.Contains(t, r.PlainBody, "Add time: found after 2 checks")
	assert.Contains(t, r.PlainBody, "(1m30s)")
	assert.Contains(t, r.PlainBody, "Evidence: https://example.com/bundle.zip")

	assert.Contains(t, r.HTMLBody, `class="ok"`)
	assert.Contains(t, r.HTMLBody, "02-claim.png")
	assert.NotContains(t, r.HTMLBody, "/tmp/shots")
}

func TestBuild_FailedListsAttempts(t *testing.T) {
	b, err := New("https://panel.example/server/abc")
	require.NoError(t, err)

	r, err := b.Build(&types.RunResult{
		StartedAt: time.Now(),
		Outcome:   types.OutcomeFailed,
		Login: &types.LoginResult{Attempts: []types.LoginAttempt{
			{Strategy: types.StrategyCookie, Status: types.AttemptSkipped},
			{Strategy: types.StrategyCredentials, Status: types.AttemptFailed, Error: "<rejected>"},
		}},
		Error: "login failed",
	})
	require.NoError(t, err)

	assert.Contains(t, r.PlainBody, "run failed")
	assert.Contains(t, r.PlainBody, "credentials: failed (<rejected>)")
	assert.Contains(t, r.PlainBody, "Error: login failed")
	assert.Empty(t, r.Screenshot)

	assert.Contains(t, r.HTMLBody, `class="fail"`)
	assert.Contains(t, r.HTMLBody, "&lt;rejected&gt;", "html output is escaped")
}

func TestBuild_NotAvailable(t *testing.T) {
	b, err := New("https://panel.example/server/abc")
	require.NoError(t, err)

	r, err := b.Build(&types.RunResult{
		StartedAt: time.Now(),
		Outcome:   types.OutcomeNotAvailable,
		Claim:     &types.ClaimResult{Outcome: types.OutcomeNotAvailable, AddTimePolls: 12},
	})
	require.NoError(t, err)
	assert.Contains(t, r.PlainBody, "not offered after 12 checks")
}

func TestBuild_Nil(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	_, err = b.Build(nil)
	assert.Error(t, err)
}
