package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/panfm/panfm/internal/model"
)

// emailConfig is the JSON shape stored in notification_channel.config for
// kind=email. Fields left blank fall back to the process-wide SMTP
// environment configuration.
type emailConfig struct {
	Host     string   `json:"host,omitempty"`
	Port     int      `json:"port,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	From     string   `json:"from,omitempty"`
	To       []string `json:"to"`
	Subject  string   `json:"subject,omitempty"`
}

func (d *Dispatcher) sendEmail(ctx context.Context, channel model.NotificationChannel, alert model.AlertHistory) error {
	var cfg emailConfig
	if err := decodeConfig(channel.Config, &cfg); err != nil {
		return err
	}

	d.mu.RLock()
	fb := d.fallback
	d.mu.RUnlock()

	host := firstNonEmpty(cfg.Host, fb.smtpHost)
	from := firstNonEmpty(cfg.From, fb.smtpFrom)
	username := firstNonEmpty(cfg.Username, fb.smtpUser)
	password := firstNonEmpty(cfg.Password, fb.smtpPass)
	port := cfg.Port
	if port == 0 {
		port = fb.smtpPort
	}
	if port == 0 {
		port = 587
	}
	if host == "" || from == "" || len(cfg.To) == 0 {
		return fmt.Errorf("email channel %s missing host/from/recipients", channel.ID)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = fmt.Sprintf("PANfm alert: %s", alert.Severity)
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	msg := buildMIMEMessage(from, cfg.To, subject, alert.Message)
	if err := smtp.SendMail(addr, auth, from, cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

func buildMIMEMessage(from string, to []string, subject, body string) []byte {
	toHeader := ""
	for i, t := range to {
		if i > 0 {
			toHeader += ", "
		}
		toHeader += t
	}
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n", from, toHeader, subject)
	return []byte(headers + body + "\r\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
