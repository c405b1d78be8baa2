// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package notify delivers activation tokens to registrants. Delivery is
// best-effort: the registration flow logs failures and carries on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
)

// LogNotifier writes the activation token to the log instead of
// delivering it. The development default.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger discards output.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogNotifier{logger: logger}
}

// Send logs the token at info level.
func (n *LogNotifier) Send(ctx context.Context, email, token string) error {
	n.logger.InfoContext(ctx, "activation token issued",
		"email", email,
		"token", token,
	)
	return nil
}

// sendMailFunc matches smtp.SendMail, injectable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier delivers activation tokens by mail.
type SMTPNotifier struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPNotifier creates an SMTPNotifier. Plain auth is used when a
// username is configured.
func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	var a smtp.Auth
	if cfg.Username != "" {
		a = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPNotifier{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     cfg.From,
		auth:     a,
		sendMail: smtp.SendMail,
	}
}

// Send mails the activation token to the address.
func (n *SMTPNotifier) Send(_ context.Context, email, token string) error {
	msg := buildMessage(n.from, email, token)
	if err := n.sendMail(n.addr, n.auth, n.from, []string{email}, msg); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// buildMessage renders the activation mail.
func buildMessage(from, to, token string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Activate your account\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your activation token is: %s\r\n", token)
	return []byte(b.String())
}

// Allowlist wraps a Notifier and drops recipients matching none of the
// patterns. An empty pattern list allows everyone.
type Allowlist struct {
	next     auth.Notifier
	patterns []glob.Glob
	logger   *slog.Logger
}

// NewAllowlist compiles the glob patterns around next.
func NewAllowlist(next auth.Notifier, patterns []string, logger *slog.Logger) (*Allowlist, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("pattern", pattern).
				Wrapf(err, "invalid notify allow pattern")
		}
		compiled = append(compiled, g)
	}
	return &Allowlist{next: next, patterns: compiled, logger: logger}, nil
}

// Send forwards to the wrapped notifier when the recipient matches the
// allowlist; otherwise the token is silently dropped (and logged).
func (a *Allowlist) Send(ctx context.Context, email, token string) error {
	if !a.allowed(email) {
		a.logger.WarnContext(ctx, "recipient not on notify allowlist, dropping token",
			"email", email,
		)
		return nil
	}
	return a.next.Send(ctx, email, token)
}

func (a *Allowlist) allowed(email string) bool {
	if len(a.patterns) == 0 {
		return true
	}
	for _, g := range a.patterns {
		if g.Match(email) {
			return true
		}
	}
	return false
}

// FromConfig builds the configured notifier chain: the mode's delivery
// backend wrapped in the recipient allowlist.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) (auth.Notifier, error) {
	var base auth.Notifier
	switch cfg.Mode {
	case "", "log":
		base = NewLogNotifier(logger)
	case "smtp":
		base = NewSMTPNotifier(cfg.SMTP)
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("notify_mode", cfg.Mode).
			Errorf("notify.mode must be log or smtp")
	}
	return NewAllowlist(base, cfg.Allow, logger)
}

// Compile-time interface checks.
var (
	_ auth.Notifier = (*LogNotifier)(nil)
	_ auth.Notifier = (*SMTPNotifier)(nil)
	_ auth.Notifier = (*Allowlist)(nil)
)
