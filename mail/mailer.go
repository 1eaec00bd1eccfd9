package mail

import (
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/casevine/casevine/config"
	"github.com/casevine/casevine/errors"
)

// Mailer sends templated email over SMTP. Templates use {{name}}
// placeholders resolved from the variable map at send time.
type Mailer struct {
	cfg config.EmailConfig
	log *zap.SugaredLogger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates an SMTP mailer from config.
func NewMailer(cfg config.EmailConfig, log *zap.SugaredLogger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// SendTemplateEmail implements sched.EmailSender.
func (m *Mailer) SendTemplateEmail(receiverAddress, subject, template string, variables map[string]any) error {
	if strings.TrimSpace(receiverAddress) == "" {
		return errors.Wrap(errors.ErrInvalidArgument, "receiver address is required")
	}

	body := renderTemplate(template, variables)
	msg := buildMessage(m.cfg.FromAddress, receiverAddress, subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	if err := m.send(addr, auth, m.cfg.FromAddress, []string{receiverAddress}, msg); err != nil {
		return errors.Wrapf(err, "failed to send email to %s", receiverAddress)
	}

	m.log.Infow("Email sent",
		"receiver", receiverAddress,
		"subject", subject,
		"template", template,
	)
	return nil
}

// renderTemplate substitutes {{name}} placeholders with variable values.
// Unresolved placeholders are left in place so missing data is visible in
// the delivered mail rather than silently blanked.
func renderTemplate(template string, variables map[string]any) string {
	out := template
	for name, value := range variables {
		out = strings.ReplaceAll(out, "{{"+name+"}}", stringify(value))
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
