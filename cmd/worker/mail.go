package main

import (
	"bytes"
	"embed"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"
	"text/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mark3748/helpdesk-sla/internal/notify"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var mailTemplates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"percent": func(r float64) string { return fmt.Sprintf("%.0f%%", r*100) },
}).ParseFS(templatesFS, "templates/*.tmpl"))

// smtpSendMail is swapped out in tests.
var smtpSendMail = smtp.SendMail

// Email address validation regex based on RFC 5322 simplified pattern
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// HTML sanitization policy for email bodies
var htmlPolicy = bluemonday.UGCPolicy()

// sanitizeEmailHeader removes CRLF characters that could be used for header injection
func sanitizeEmailHeader(input string) string {
	sanitized := strings.ReplaceAll(input, "\r", "")
	sanitized = strings.ReplaceAll(sanitized, "\n", "")
	return strings.TrimSpace(sanitized)
}

func validateEmailAddress(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email address cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	return nil
}

func sanitizeAndValidateEmail(email string) (string, error) {
	sanitized := sanitizeEmailHeader(email)
	if err := validateEmailAddress(sanitized); err != nil {
		return "", err
	}
	return sanitized, nil
}

func sanitizeEmailBody(body []byte) string {
	return string(htmlPolicy.SanitizeBytes(body))
}

// recipients splits SLA_ALERT_TO and drops invalid addresses.
func recipients(list string) ([]string, error) {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		clean, err := sanitizeAndValidateEmail(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no alert recipients configured")
	}
	return out, nil
}

// sendAlert renders the template named after the alert kind and mails it to
// every configured recipient in one message.
func sendAlert(c Config, a notify.Alert) error {
	to, err := recipients(c.AlertTo)
	if err != nil {
		return fmt.Errorf("invalid To address: %w", err)
	}
	from, err := sanitizeAndValidateEmail(c.SMTPFrom)
	if err != nil {
		return fmt.Errorf("invalid From address: %w", err)
	}

	var subjBuf, bodyBuf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&subjBuf, a.Kind+"_subject", a); err != nil {
		return err
	}
	if err := mailTemplates.ExecuteTemplate(&bodyBuf, a.Kind+"_body", a); err != nil {
		return err
	}

	msg := bytes.Buffer{}
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	msg.WriteString("Subject: " + sanitizeEmailHeader(subjBuf.String()) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(sanitizeEmailBody(bodyBuf.Bytes()))

	var auth smtp.Auth
	if c.SMTPUser != "" {
		auth = smtp.PlainAuth("", c.SMTPUser, c.SMTPPass, c.SMTPHost)
	}
	return smtpSendMail(c.SMTPHost+":"+c.SMTPPort, auth, from, to, msg.Bytes())
}
