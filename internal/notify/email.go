package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Email mails the outcome to the reply identity.
type Email struct {
	cfg  SMTPConfig
	send func(m *email.Email, addr string, auth smtp.Auth) error
}

func NewEmail(cfg SMTPConfig) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Email{
		cfg: cfg,
		send: func(m *email.Email, addr string, auth smtp.Auth) error {
			return m.Send(addr, auth)
		},
	}
}

func (e *Email) compose(m Message) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Xepelin Blog Scraper <%s>", e.cfg.From)
	mail.To = []string{m.ReplyTo}

	p := m.Payload()
	if m.Status == StatusSuccess {
		mail.Subject = "Scraping completado"
		mail.Text = []byte(fmt.Sprintf("Los posts del blog están disponibles en:\n\n%s\n", p.Link))
	} else {
		mail.Subject = "Scraping fallido"
		mail.Text = []byte(fmt.Sprintf("El scraping no pudo completarse.\n\nError: %s\n", p.Error))
	}
	return mail
}

func (e *Email) Notify(_ context.Context, m Message) error {
	if m.ReplyTo == "" || e.cfg.Host == "" {
		return nil
	}
	mail := e.compose(m)
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	err := e.send(mail, addr, smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = e.send(mail, addr, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
