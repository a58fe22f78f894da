// Package email provides email sending functionality
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"
	"time"
)

// Config holds email configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
}

// NewService creates a new email service
func NewService(config *Config) *Service {
	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
	}
	s.loadTemplates()
	return s
}

// Email represents an email message
type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// codeEmailData holds data for verification and login code emails
type codeEmailData struct {
	Code           string
	ExpiresMinutes int
}

// loadTemplates loads all email templates
func (s *Service) loadTemplates() {

	// Account cluster verification code
	s.templates["cluster-verification"] = template.Must(template.New("cluster-verification").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #6366f1; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background: white; border-radius: 6px; margin: 16px 0; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>Link Your Accounts</h2>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p>Another account asked to link with this one. Enter this code in the portal to approve:</p>

        <div class="code">{{.Code}}</div>

        <p style="margin-top: 16px; font-size: 14px; color: #6b7280;">
            This code expires in {{.ExpiresMinutes}} minutes. If you were not expecting this email, you can ignore it.
        </p>
    </div>
    <div class="footer">
        Citizen Portal • Popup Village
    </div>
</div>
</body>
</html>
`))

	// Passwordless login code
	s.templates["login-code"] = template.Must(template.New("login-code").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #10b981; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background: white; border-radius: 6px; margin: 16px 0; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>Your Login Code</h2>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p>Use this code to sign in to the Citizen Portal:</p>

        <div class="code">{{.Code}}</div>

        <p style="margin-top: 16px; font-size: 14px; color: #6b7280;">
            This code expires in {{.ExpiresMinutes}} minutes. If you did not request it, you can ignore this email.
        </p>
    </div>
    <div class="footer">
        Citizen Portal • Popup Village
    </div>
</div>
</body>
</html>
`))
}

// SendClusterVerification emails the account-linking code to the target
// citizen. The caller decides what to do when delivery fails.
func (s *Service) SendClusterVerification(to, code string, expiresIn time.Duration) error {
	return s.sendWithTemplate(to, "Your account linking code", "cluster-verification", codeEmailData{
		Code:           code,
		ExpiresMinutes: int(expiresIn.Minutes()),
	})
}

// SendLoginCode emails a passwordless login code.
func (s *Service) SendLoginCode(to, code string, expiresIn time.Duration) error {
	return s.sendWithTemplate(to, "Your login code", "login-code", codeEmailData{
		Code:           code,
		ExpiresMinutes: int(expiresIn.Minutes()),
	})
}

func (s *Service) sendWithTemplate(to, subject, templateName string, data interface{}) error {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return fmt.Errorf("template %s not found", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return s.Send(&Email{
		To:       []string{to},
		Subject:  subject,
		HTMLBody: body.String(),
	})
}

// Send delivers a raw email via SMTP.
func (s *Service) Send(email *Email) error {
	if s.config.Host == "" {
		log.Println("Email not configured, skipping send")
		return nil
	}

	// Build message
	var msg bytes.Buffer

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(email.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody != "" {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.HTMLBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.Body)
	}

	// Create auth
	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if s.config.UseTLS {
		// TLS connection
		tlsConfig := &tls.Config{
			ServerName: s.config.Host,
		}

		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("TLS dial error: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.config.Host)
		if err != nil {
			return fmt.Errorf("SMTP client error: %w", err)
		}
		defer client.Close()

		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("auth error: %w", err)
		}

		if err = client.Mail(s.config.From); err != nil {
			return fmt.Errorf("mail error: %w", err)
		}

		for _, rcpt := range email.To {
			if err = client.Rcpt(rcpt); err != nil {
				return fmt.Errorf("rcpt error: %w", err)
			}
		}

		w, err := client.Data()
		if err != nil {
			return fmt.Errorf("data error: %w", err)
		}

		_, err = w.Write(msg.Bytes())
		if err != nil {
			return fmt.Errorf("write error: %w", err)
		}

		err = w.Close()
		if err != nil {
			return fmt.Errorf("close error: %w", err)
		}

		return client.Quit()
	}

	// Non-TLS
	return smtp.SendMail(addr, auth, s.config.From, email.To, msg.Bytes())
}
