package mailer

import (
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"neighborsos/internal/config"
	"neighborsos/internal/util"
)

const (
	retryCount     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// Sender delivers marketplace notifications. Handlers depend on the
// interface; tests substitute a recorder.
type Sender interface {
	Send(to []string, subject, htmlBody string) error
}

type smtpSender struct {
	dialer      *gomail.Dialer
	fromAddress string
	fromName    string
}

// NewSender builds the SMTP sender from config. Transient SMTP
// failures are retried with exponential backoff before giving up.
func NewSender(cfg *config.Config) Sender {
	d := gomail.NewDialer(
		cfg.Mail.SMTPHost,
		cfg.Mail.SMTPPort,
		cfg.Mail.SMTPUser,
		cfg.Mail.SMTPPassword,
	)

	util.Info("Mail sender initialized",
		zap.String("host", cfg.Mail.SMTPHost),
		zap.Int("port", cfg.Mail.SMTPPort),
		zap.String("from", cfg.Mail.FromAddress))

	return &smtpSender{
		dialer:      d,
		fromAddress: cfg.Mail.FromAddress,
		fromName:    cfg.Mail.FromName,
	}
}

func (s *smtpSender) Send(to []string, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.fromAddress, s.fromName)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt <= retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			util.Info("Mail sent",
				zap.Int("recipients", len(to)),
				zap.String("subject", subject),
				zap.Int("attempt", attempt+1))
			return nil
		}

		lastErr = err
		if attempt < retryCount {
			util.Warn("Mail send attempt failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	util.Error("Mail send failed",
		zap.Int("attempts", retryCount+1),
		zap.String("subject", subject),
		zap.Error(lastErr))
	return lastErr
}

// NopSender is used when no SMTP host is configured (development).
// Sends are logged and dropped.
type NopSender struct{}

func (NopSender) Send(to []string, subject, _ string) error {
	util.Info("Mail sending disabled, dropping message",
		zap.Int("recipients", len(to)),
		zap.String("subject", subject))
	return nil
}
