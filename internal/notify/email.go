package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

const defaultFromName = "Popular Doctor"

// EmailSender delivers one rendered message. SendGrid, SES and the stub
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a rendered email. HTML is optional.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// identity is the From header shared by the real senders.
type identity struct {
	name  string
	email string
}

func newIdentity(name, email string) identity {
	if strings.TrimSpace(name) == "" {
		name = defaultFromName
	}
	return identity{name: name, email: email}
}

func (id identity) String() string {
	return fmt.Sprintf("%s <%s>", id.name, id.email)
}

// StubEmailSender logs instead of sending. Used when no provider is set up.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}

// ContactResolver looks up where to reach a user.
type ContactResolver interface {
	UserContact(ctx context.Context, userID string) (directory.Contact, error)
}

// EmailNotifier e-mails notifications to the user's address on file. Users
// without an address are skipped.
type EmailNotifier struct {
	contacts ContactResolver
	sender   EmailSender
	logger   *logging.Logger
}

func NewEmailNotifier(contacts ContactResolver, sender EmailSender, logger *logging.Logger) *EmailNotifier {
	if contacts == nil || sender == nil {
		panic("notify: contacts and sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{contacts: contacts, sender: sender, logger: logger}
}

func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	contact, err := e.contacts.UserContact(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			e.logger.Warn("notify: user not found, skipping email", "user_id", n.UserID)
			return nil
		}
		return fmt.Errorf("notify: resolve contact: %w", err)
	}
	if contact.Email == "" {
		return nil
	}
	msg, err := renderEmail(n, contact)
	if err != nil {
		return err
	}
	return e.sender.Send(ctx, msg)
}

var emailHTML = template.Must(template.New("email").Parse(
	`<p>Hi {{.Name}},</p><p>{{.Body}}</p>{{if .BookingID}}<p style="color:#666">Booking #{{.BookingID}}</p>{{end}}`))

func renderEmail(n Notification, c directory.Contact) (EmailMessage, error) {
	name := c.FullName
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s,\n\n%s\n", name, n.Body)
	if n.BookingID != 0 {
		text += fmt.Sprintf("\nBooking #%d\n", n.BookingID)
	}

	var html bytes.Buffer
	err := emailHTML.Execute(&html, struct {
		Name      string
		Body      string
		BookingID int64
	}{name, n.Body, n.BookingID})
	if err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render email: %w", err)
	}
	return EmailMessage{
		To:      c.Email,
		ToName:  c.FullName,
		Subject: n.Title,
		Body:    text,
		HTML:    html.String(),
	}, nil
}
