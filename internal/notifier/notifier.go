package notifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/notifier/providers"
	"github.com/panelrenew/panelrenew/internal/report"
)

// Notifier fans run reports out to every configured channel
type Notifier struct {
	senders []Sender
	logger  *zap.Logger
}

// Sender delivers a report over one channel
type Sender interface {
	Name() string
	Send(ctx context.Context, r *report.Report) error
}

// New creates a new notifier with the given senders
func New(logger *zap.Logger, senders ...Sender) *Notifier {
	return &Notifier{senders: senders, logger: logger.Named("notifier")}
}

// NewFromConfig creates a notifier for every channel enabled in cfg. A
// notifier without senders is valid and does nothing.
func NewFromConfig(cfg config.NotifyConfig, logger *zap.Logger) (*Notifier, error) {
	var senders []Sender

	if cfg.Telegram.Enabled() {
		tg, err := providers.NewTelegramSender(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.APIEndpoint)
		if err != nil {
			return nil, err
		}
		senders = append(senders, tg)
	}

	if cfg.Email.Enabled() {
		e := cfg.Email
		senders = append(senders, providers.NewSMTPSender(e.SMTPHost, e.SMTPPort, e.SMTPUser, e.SMTPPass, e.FromAddr, e.ToAddr))
	}

	return New(logger, senders...), nil
}

// Enabled reports whether any channel is configured
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends r to every channel. One failing channel does not stop the
// others; all failures are joined.
func (n *Notifier) Notify(ctx context.Context, r *report.Report) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, r); err != nil {
			n.logger.Warn("Notification failed", zap.String("channel", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Info("Notification sent", zap.String("channel", s.Name()))
	}
	return errors.Join(errs...)
}
