// Package mail composes the client emails shared by the mailer adapters.
package mail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/ports"
)

type Kind string

const (
	KindInvitation Kind = "invitation"
	KindReminder   Kind = "reminder"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

var bodies = map[Kind]*template.Template{
	KindInvitation: template.Must(template.New("invitation").Parse(`Hello {{.ClientName}},

your insurance termination {{.CaseNumber}} has been prepared.
Please upload the requested documents and sign the termination here:

{{.PortalURL}}

The link is valid until {{.ExpiresAt}}.
`)),
	KindReminder: template.Must(template.New("reminder").Parse(`Hello {{.ClientName}},

we are still waiting for your documents for termination {{.CaseNumber}}.
You can continue where you left off:

{{.PortalURL}}

The link is valid until {{.ExpiresAt}}.
`)),
}

var subjects = map[Kind]string{
	KindInvitation: "Your insurance termination %s",
	KindReminder:   "Reminder: documents for termination %s",
}

func Compose(kind Kind, inv ports.Invitation) (Message, error) {
	tmpl, ok := bodies[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail kind %q", kind)
	}
	if strings.TrimSpace(inv.ClientEmail) == "" {
		return Message{}, fmt.Errorf("compose %s: recipient is empty", kind)
	}
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, map[string]string{
		"ClientName": inv.ClientName,
		"CaseNumber": inv.CaseNumber,
		"PortalURL":  inv.PortalURL,
		"ExpiresAt":  inv.TokenExpiresAt.UTC().Format(time.DateTime) + " UTC",
	})
	if err != nil {
		return Message{}, fmt.Errorf("compose %s: %w", kind, err)
	}
	return Message{
		To:      inv.ClientEmail,
		Subject: fmt.Sprintf(subjects[kind], inv.CaseNumber),
		Text:    buf.String(),
	}, nil
}
