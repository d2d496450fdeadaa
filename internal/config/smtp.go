package config

import (
	"os"
	"time"
)

// SMTPConfig describes the outbound mail relay used by the email consumer.
// When Addr is empty the consumer falls back to log-only delivery, which is
// the expected mode in development.
type SMTPConfig struct {
	Addr     string // host:port of the SMTP server
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

func LoadSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Addr:     os.Getenv("SMTP_ADDR"),
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     envStr("SMTP_FROM", "onboarding@apnisec.dev"),
		Timeout:  envDur("SMTP_TIMEOUT", 10*time.Second),
	}
}
