// Package panel drives the server page of the hosting panel.
package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/browser"
	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/poll"
	"github.com/panelrenew/panelrenew/internal/types"
)

// ErrAdGateMissing is returned when Add time was clicked but the
// advertisement confirmation never appeared.
var ErrAdGateMissing = errors.New("advertisement confirmation did not appear")

// Claimer claims extra server time.
type Claimer struct {
	panel  config.PanelConfig
	claim  config.ClaimConfig
	sel    config.SelectorsConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewClaimer creates a claimer for the server configured in cfg.
func NewClaimer(cfg *config.Config, logger *zap.Logger) *Claimer {
	return &Claimer{
		panel:  cfg.Panel,
		claim:  cfg.Claim,
		sel:    cfg.Selectors,
		logger: logger.Named("panel"),
		now:    time.Now,
	}
}

// Claim looks for the Add time button and, if it shows up within the poll
// budget, clicks through the advertisement gate and waits out the cooldown.
// A button that never appears is the normal "nothing to claim yet" case and
// yields OutcomeNotAvailable with a nil error.
func (c *Claimer) Claim(ctx context.Context, page browser.Page) (types.ClaimResult, error) {
	result := types.ClaimResult{Outcome: types.OutcomeFailed}

	if err := c.ensureServerPage(ctx, page); err != nil {
		return result, err
	}

	addTime := AddTimeButton(c.sel)
	found, err := poll.Until(ctx, c.claim.Polls, c.claim.Interval, func(ctx context.Context, attempt int) (bool, error) {
		result.AddTimePolls = attempt
		n, err := page.Count(ctx, addTime)
		if err != nil {
			return false, err
		}
		c.logger.Debug("Looking for Add time", zap.Int("attempt", attempt), zap.Int("matches", n))
		return n > 0, nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if !found {
		if err != nil {
			c.logger.Warn("Add time lookup kept failing", zap.Error(err))
		}
		c.logger.Info("Add time not available", zap.Int("polls", result.AddTimePolls))
		result.Outcome = types.OutcomeNotAvailable
		return result, nil
	}

	if err := page.Click(ctx, addTime); err != nil {
		return result, err
	}
	result.ClickedAt = c.now()
	c.logger.Info("Clicked Add time")

	gate := AdGateButton(c.sel)
	shown, err := poll.Until(ctx, c.claim.AdGatePolls, c.claim.AdGateInterval, func(ctx context.Context, _ int) (bool, error) {
		n, err := page.Count(ctx, gate)
		return n > 0, err
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if !shown {
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrAdGateMissing, err)
		}
		return result, ErrAdGateMissing
	}

	if err := page.Click(ctx, gate); err != nil {
		return result, err
	}
	c.logger.Info("Confirmed advertisement, waiting for cooldown", zap.Duration("cooldown", c.claim.Cooldown))

	if err := poll.Sleep(ctx, c.claim.Cooldown); err != nil {
		return result, err
	}

	result.Cooldown = c.claim.Cooldown
	result.Outcome = types.OutcomeClaimed
	return result, nil
}

func (c *Claimer) ensureServerPage(ctx context.Context, page browser.Page) error {
	loc, err := page.Location(ctx)
	if err == nil && loc == c.panel.ServerURL() {
		return nil
	}
	return page.Navigate(ctx, c.panel.ServerURL())
}
