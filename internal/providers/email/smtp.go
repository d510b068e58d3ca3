package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/smallbiznis/creatorpay/pkg/money"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

var claimLinkTemplate = template.Must(template.New("claim_link").Parse(`<html>
<body>
<p>Hi {{.CreatorName}},</p>
<p>A payment of <strong>{{.Amount}}</strong> is ready for you{{if .Description}} for: {{.Description}}{{end}}.</p>
<p><a href="{{.ClaimURL}}">Review and accept the payment</a></p>
{{if .DueDate}}<p>Please accept before {{.DueDate}}.</p>{{end}}
<p>If you were not expecting this payment, you can ignore this email.</p>
</body>
</html>`))

func (p *SMTPProvider) SendClaimLink(ctx context.Context, msg ClaimLinkEmail) error {
	data := map[string]string{
		"CreatorName": msg.CreatorName,
		"Description": msg.Description,
		"Amount":      money.FormatAmount(msg.TotalAmount, msg.Currency),
		"ClaimURL":    msg.ClaimURL,
	}
	if msg.DueAt != nil {
		data["DueDate"] = msg.DueAt.Format("2 January 2006")
	}

	var body bytes.Buffer
	if err := claimLinkTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render claim email: %w", err)
	}

	return p.send(msg.To, "You have a payment waiting", body.String())
}

func (p *SMTPProvider) send(to string, subject string, htmlBody string) error {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	raw := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, []string{to}, raw)
}
