package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends transactional mail over plain SMTP. Pointed at a local relay
// (Mailpit in development) it needs no authentication.
type Mailer struct {
	addr string
	from string
}

// New builds a Mailer for the given SMTP endpoint.
func New(host string, port int, from string) *Mailer {
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one plain-text message.
func (m *Mailer) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")
	return smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg.String()))
}
