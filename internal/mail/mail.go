// internal/mail/mail.go
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	netmail "net/mail"
	"strings"
	"time"
)

var ErrInvalidAddress = errors.New("invalid email address")

// Email types. Sent as the message type and recorded in registration audit logs.
const (
	TypeRegistrationConfirmation = "registration-confirmation"
	TypeAccessLink               = "access-link"
)

// Message is a single transactional email.
type Message struct {
	To      string         `json:"to"`
	ToName  string         `json:"to_name,omitempty"`
	Subject string         `json:"subject"`
	Type    string         `json:"type,omitempty"`
	HTML    string         `json:"html,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Sender delivers transactional email. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ConfirmationData feeds the registration confirmation template.
type ConfirmationData struct {
	FirstName      string
	EventTitle     string
	Location       string
	Start          time.Time
	AttendanceType string
	AmountPaid     string
	ViewerURL      string
}

// AccessData feeds the access link template.
type AccessData struct {
	Name      string
	Title     string
	ViewerURL string
	Recording bool
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Hi {{.FirstName}},</p>
<p>You are registered for <strong>{{.EventTitle}}</strong>{{if not .Start.IsZero}} on {{.Start.Format "Monday, January 2, 2006 at 3:04 PM"}}{{end}}.</p>
{{if .Location}}<p>Location: {{.Location}}</p>{{end}}
{{if .AttendanceType}}<p>Attendance: {{.AttendanceType}}</p>{{end}}
{{if .AmountPaid}}<p>Amount paid: ${{.AmountPaid}}</p>{{end}}
{{if .ViewerURL}}<p>Watch online: <a href="{{.ViewerURL}}">{{.ViewerURL}}</a></p>{{end}}
<p>We look forward to seeing you.</p>`))

var accessTmpl = template.Must(template.New("access").Parse(`<p>Hi {{.Name}},</p>
<p>{{if .Recording}}Your recording of{{else}}Your livestream access for{{end}} <strong>{{.Title}}</strong> is ready.</p>
<p><a href="{{.ViewerURL}}">{{.ViewerURL}}</a></p>
<p>This link is personal; please do not share it.</p>`))

// NormalizeAddress reduces user input to a bare lowercase address. Display-name forms such as
// "Ruth <ruth@example.org>" yield "ruth@example.org".
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}
	addr, err := netmail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return strings.ToLower(addr.Address), nil
}

// ConfirmationSubject is the subject line of a registration confirmation.
func ConfirmationSubject(eventTitle string) string {
	return fmt.Sprintf("Registration Confirmed: %s", eventTitle)
}

// AccessSubject is the subject line of an access link email.
func AccessSubject(title string) string {
	return fmt.Sprintf("Your access link: %s", title)
}

// RenderConfirmation renders the confirmation email body.
func RenderConfirmation(data ConfirmationData) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return buf.String(), nil
}

// RenderAccess renders the access link email body.
func RenderAccess(data AccessData) (string, error) {
	var buf bytes.Buffer
	if err := accessTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render access link: %w", err)
	}
	return buf.String(), nil
}
