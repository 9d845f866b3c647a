// Package email renders and sends the site's transactional email.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/metrics"
)

// Template names.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateAdminNewBooking  = "admin_new_booking"
	TemplateBookingCancelled = "booking_cancelled"
	TemplateOTPCode          = "otp_code"
	TemplateContactMessage   = "contact_message"
	TemplateConflictAlert    = "conflict_alert"
)

var subjects = map[string]string{
	TemplateBookingConfirmed: "Your stay at {{.Property}} is confirmed",
	TemplateAdminNewBooking:  "New booking: {{.Room}} {{.CheckIn}} to {{.CheckOut}}",
	TemplateBookingCancelled: "Your booking at {{.Property}} was cancelled",
	TemplateOTPCode:          "Your {{.Property}} verification code",
	TemplateContactMessage:   "Contact form: {{.Name}}",
	TemplateConflictAlert:    "Action needed: booking conflict at {{.Property}}",
}

//go:embed templates/*.html
var templateFS embed.FS

// Message is one email to send. Data feeds the template.
type Message struct {
	To       []string
	ReplyTo  string
	Template string
	Data     map[string]any
}

// Mailer sends rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer turns a Message into subject and HTML body.
type Renderer struct {
	property string
	pages    *template.Template
	subjects map[string]*texttemplate.Template
}

func NewRenderer(propertyName string) (*Renderer, error) {
	funcs := template.FuncMap{
		"money": FormatMoney,
		"date":  func(t time.Time) string { return t.Format("2 Jan 2006") },
	}
	pages, err := template.New("email").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	r := &Renderer{property: propertyName, pages: pages, subjects: make(map[string]*texttemplate.Template)}
	for name, subject := range subjects {
		t, err := texttemplate.New(name).Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject %s: %w", name, err)
		}
		r.subjects[name] = t
		if pages.Lookup(name+".html") == nil {
			return nil, fmt.Errorf("missing email template %s.html", name)
		}
	}
	return r, nil
}

// Render returns the subject and HTML body for msg.
func (r *Renderer) Render(msg Message) (string, string, error) {
	subjectTmpl, ok := r.subjects[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", msg.Template)
	}

	data := map[string]any{"Property": r.property}
	for k, v := range msg.Data {
		data[k] = v
	}

	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.pages.ExecuteTemplate(&body, msg.Template+".html", data); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", msg.Template, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

// FormatMoney prints minor units as "EUR 120.00".
func FormatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, strings.ToUpper(currency), cents/100, cents%100)
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client   *resend.Client
	from     string
	renderer *Renderer
	logger   *logger.Logger
}

func NewResendMailer(apiKey, from string, renderer *Renderer, log *logger.Logger) *ResendMailer {
	return &ResendMailer{
		client:   resend.NewClient(apiKey),
		from:     from,
		renderer: renderer,
		logger:   log.WithComponent("email"),
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	subject, html, err := m.renderer.Render(msg)
	if err != nil {
		return err
	}

	req := &resend.SendEmailRequest{
		From:    m.from,
		To:      msg.To,
		Subject: subject,
		Html:    html,
		ReplyTo: msg.ReplyTo,
		Tags:    []resend.Tag{{Name: "template", Value: msg.Template}},
	}
	sent, err := m.client.Emails.SendWithContext(ctx, req)
	metrics.RecordEmail(msg.Template, err)
	if err != nil {
		m.logger.WithContext(ctx).Error("failed to send email",
			"template", msg.Template,
			"error", err.Error())
		return fmt.Errorf("resend: %w", err)
	}

	m.logger.WithContext(ctx).Info("email sent",
		"template", msg.Template,
		"resend_id", sent.Id,
		"recipients", len(msg.To))
	return nil
}

// LogMailer renders and logs instead of sending. Used when Resend is not configured.
type LogMailer struct {
	renderer *Renderer
	logger   *logger.Logger
}

func NewLogMailer(renderer *Renderer, log *logger.Logger) *LogMailer {
	return &LogMailer{renderer: renderer, logger: log.WithComponent("email")}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	subject, _, err := m.renderer.Render(msg)
	if err != nil {
		return err
	}
	metrics.RecordEmail(msg.Template, nil)
	m.logger.WithContext(ctx).Info("email not sent, mailer disabled",
		"template", msg.Template,
		"subject", subject,
		"to", strings.Join(msg.To, ","))
	return nil
}
