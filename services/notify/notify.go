// Package notify dispatches match alerts to a person's contact.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"
)

// ContactPlaceholder is replaced with the query-escaped contact in NOTIFY_URL.
const ContactPlaceholder = "{contact}"

var ErrEmptyContact = errors.New("contact is empty")

// Notifier is best-effort: a non-nil error means the alert was not delivered.
type Notifier interface {
	SendAlert(ctx context.Context, contact, message string) error
}

// New returns a shoutrrr notifier when urlTemplate is set and a logging
// notifier otherwise.
func New(urlTemplate string, timeout time.Duration, log *zap.Logger) Notifier {
	if urlTemplate == "" {
		log.Warn("NOTIFY_URL not set, alerts will only be logged")
		return NewLogNotifier(log)
	}
	return NewShoutrrrNotifier(urlTemplate, timeout, log)
}

// LogNotifier only logs the alert and reports success, for development
// setups without an SMS gateway.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendAlert(_ context.Context, contact, message string) error {
	if contact == "" {
		return ErrEmptyContact
	}
	n.log.Info("mock alert", zap.String("to", contact), zap.String("message", message))
	return nil
}

// ShoutrrrNotifier sends through any shoutrrr service URL, e.g. a generic
// webhook in front of an SMS gateway:
//
//	generic://sms.example.com/send?to={contact}
type ShoutrrrNotifier struct {
	template string
	timeout  time.Duration
	log      *zap.Logger
}

func NewShoutrrrNotifier(template string, timeout time.Duration, log *zap.Logger) *ShoutrrrNotifier {
	return &ShoutrrrNotifier{template: template, timeout: timeout, log: log}
}

// URLFor expands the contact placeholder.
func (n *ShoutrrrNotifier) URLFor(contact string) string {
	return strings.ReplaceAll(n.template, ContactPlaceholder, url.QueryEscape(contact))
}

func (n *ShoutrrrNotifier) SendAlert(ctx context.Context, contact, message string) error {
	if contact == "" {
		return ErrEmptyContact
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sender, err := shoutrrr.CreateSender(n.URLFor(contact))
	if err != nil {
		return fmt.Errorf("failed to create alert sender: %w", err)
	}
	if n.timeout > 0 {
		sender.Timeout = n.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	params := stypes.Params{}
	params.SetTitle("Missing person sighting")

	for _, sendErr := range sender.Send(message, &params) {
		if sendErr != nil {
			return fmt.Errorf("failed to send alert: %w", sendErr)
		}
	}

	n.log.Info("alert dispatched", zap.String("to", contact))
	return nil
}
