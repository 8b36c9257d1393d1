// Package mail envía correos operacionales (alertas de gateway, reportes de
// reconciliación) vía SMTP.
package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/open-uchile/ecommerce/pkg/config"
)

// Mailer envía correos al equipo de operaciones y a usuarios finales.
type Mailer struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
}

// NewMailer construye el mailer con la configuración SMTP.
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

// SendAlert envía un correo de texto plano al equipo de soporte.
func (m *Mailer) SendAlert(subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.Team)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: enviar alerta %q: %w", subject, err)
	}
	return nil
}

// SendWithAttachment envía un correo al equipo adjuntando un archivo
// (reportes CSV de reconciliación).
func (m *Mailer) SendWithAttachment(subject, body, filePath string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.Team)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if filePath != "" {
		msg.Attach(filePath)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: enviar %q: %w", subject, err)
	}
	return nil
}

// SendUserNotification envía el aviso "boleta disponible" al comprador.
func (m *Mailer) SendUserNotification(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: notificar a %s: %w", to, err)
	}
	return nil
}
