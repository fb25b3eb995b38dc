package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

// ErrNotConfigured is returned when no SMTP host is set. Callers treat mail as
// optional and only log this.
var ErrNotConfigured = errors.New("SMTP_HOST not configured")

// SendMail delivers one HTML mail to the shop operator via plain SMTP.
func SendMail(to, subject, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		return ErrNotConfigured
	}
	port := env.GetEnv("SMTP_PORT", "587")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "marketfox@localhost")

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", sender)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	addr := host + ":" + port
	if err := smtp.SendMail(addr, auth, sender, []string{to}, []byte(msg.String())); err != nil {
		log.Errorf("[Mail] Send to %s via %s failed: %v", to, addr, err)
		return err
	}
	log.Debugf("[Mail] Sent %q to %s", subject, to)
	return nil
}
