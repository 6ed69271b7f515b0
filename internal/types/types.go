package types

import "time"

// Outcome is the final state of a claim run
type Outcome string

const (
	OutcomeClaimed      Outcome = "claimed"
	OutcomeNotAvailable Outcome = "not_available"
	OutcomeFailed       Outcome = "failed"
)

// StrategyName identifies a login strategy
type StrategyName string

const (
	StrategyCookie        StrategyName = "cookie"
	StrategyAuthorization StrategyName = "authorization"
	StrategyCredentials   StrategyName = "credentials"
)

// AttemptStatus is the result of trying one login strategy
type AttemptStatus string

const (
	AttemptSkipped   AttemptStatus = "skipped"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSucceeded AttemptStatus = "succeeded"
)

// LoginAttempt records one step of the login fallback chain
type LoginAttempt struct {
	Strategy StrategyName  `json:"strategy"`
	Status   AttemptStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// LoginResult describes how the session was established
type LoginResult struct {
	Strategy StrategyName   `json:"strategy,omitempty"`
	Attempts []LoginAttempt `json:"attempts"`
}

// ClaimResult describes the claim-time step
type ClaimResult struct {
	Outcome      Outcome       `json:"outcome"`
	AddTimePolls int           `json:"add_time_polls"`
	ClickedAt    time.Time     `json:"clicked_at,omitempty"`
	Cooldown     time.Duration `json:"cooldown,omitempty"`
}

// RunResult is everything known about a single invocation
type RunResult struct {
	ID          int64        `json:"id,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Login       *LoginResult `json:"login,omitempty"`
	Claim       *ClaimResult `json:"claim,omitempty"`
	Outcome     Outcome      `json:"outcome"`
	Screenshots []string     `json:"screenshots"`
	ArchivePath string       `json:"archive_path,omitempty"`
	AssetURL    string       `json:"asset_url,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Duration returns how long the run took
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LoginStrategy returns the strategy that established the session, if any
func (r *RunResult) LoginStrategy() StrategyName {
	if r.Login == nil {
		return ""
	}
	return r.Login.Strategy
}
