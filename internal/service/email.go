package service

import (
	"net/smtp"

	"go.uber.org/zap"
)

type EmailService interface{ Send(to, subject, body string) error }

type SMTPConfig struct {
	Host, Port, From string
}

type smtpEmail struct {
	cfg SMTPConfig
	log *zap.Logger
}

// NewEmailService sends through cfg.Host, or only logs the message when no
// host is configured.
func NewEmailService(cfg SMTPConfig, log *zap.Logger) EmailService {
	return &smtpEmail{cfg: cfg, log: log}
}

func (s *smtpEmail) Send(to, subject, body string) error {
	if s.cfg.Host == "" {
		s.log.Info("email not sent, smtp disabled", zap.String("to", to), zap.String("subject", subject))
		return nil
	}
	addr := s.cfg.Host + ":" + s.cfg.Port

	msg := "From: " + s.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n" +
		body

	// MailHog-style relay, no auth
	return smtp.SendMail(addr, nil, s.cfg.From, []string{to}, []byte(msg))
}
