// Package notify mails changed results to the configured recipients.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/config"
	"github.com/hpungsan/sitediff/internal/tracker"
)

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// SMTPSender sends through an SMTP relay, upgrading with STARTTLS when offered.
type SMTPSender struct {
	addr     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds a sender from cfg. Auth is PLAIN when a username is set.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	s := &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		sendMail: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

// Send delivers msg. net/smtp has no context support; ctx is only checked
// before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("compose mail: %w", err)
	}
	if err := s.sendMail(s.addr, s.auth, msg.From, msg.To, data); err != nil {
		return fmt.Errorf("smtp %s: %w", s.addr, err)
	}
	return nil
}

// Notifier turns tracking results into mail.
type Notifier struct {
	sender Sender
	from   string
	to     []string
	log    zerolog.Logger
	now    func() time.Time
}

// New returns a Notifier sending from cfg.From to the comma separated cfg.To.
func New(sender Sender, cfg config.SMTPConfig, log zerolog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		from:   cfg.From,
		to:     splitAddresses(cfg.To),
		log:    log.With().Str("component", "notify").Logger(),
		now:    time.Now,
	}
}

// Notify sends one mail per Changed result, subject "Diff in <url>".
// A failed send does not stop the others; the returned count is the number delivered.
func (n *Notifier) Notify(ctx context.Context, results []tracker.Result) (int, error) {
	var sent int
	var errs []error
	for _, r := range results {
		if !r.IsChanged() {
			continue
		}
		msg := Message{
			From:    n.from,
			To:      n.to,
			Subject: "Diff in " + r.URL,
			Text:    r.Message(),
			HTML:    r.MessageHTML(),
			Date:    n.now(),
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			n.log.Error().Err(err).Str("url", r.URL).Msg("send failed")
			errs = append(errs, err)
			continue
		}
		sent++
		n.log.Info().Str("url", r.URL).Msg("change mailed")
	}
	return sent, stderrors.Join(errs...)
}

// NotifyDigest sends a single summary mail for a batch. Nothing is sent when
// no result changed or failed.
func (n *Notifier) NotifyDigest(ctx context.Context, results []tracker.Result) (bool, error) {
	var changed, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.IsChanged():
			changed++
		}
	}
	if changed == 0 && failed == 0 {
		return false, nil
	}

	at := n.now()
	md := Digest(results, at)
	html, err := RenderDigest(md)
	if err != nil {
		return false, err
	}
	msg := Message{
		From:    n.from,
		To:      n.to,
		Subject: fmt.Sprintf("sitediff: %d changed, %d failed", changed, failed),
		Text:    md,
		HTML:    html,
		Date:    at,
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Error().Err(err).Msg("digest send failed")
		return false, err
	}
	return true, nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
