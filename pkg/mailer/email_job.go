package mailer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oksasatya/account-lifecycle/pkg/mailer/templates"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Template (rendered by the worker with Data) or Subject plus
// Text/HTML must be set.
type EmailJob struct {
	// ID is stable per logical message so consumers can drop redeliveries.
	ID       string         `json:"id,omitempty"`
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // e.g. "dormancy_notice"
	Data     map[string]any `json:"data,omitempty"`
}

var ErrInvalidJob = errors.New("invalid email job")

func (j EmailJob) Validate() error {
	if strings.TrimSpace(j.To) == "" {
		return errors.Join(ErrInvalidJob, errors.New("missing recipient"))
	}
	if j.Template == "" && j.Subject == "" {
		return errors.Join(ErrInvalidJob, errors.New("needs a template or a subject"))
	}
	if j.Template != "" && !templates.Known(j.Template) {
		return errors.Join(ErrInvalidJob, fmt.Errorf("unknown template %q", j.Template))
	}
	return nil
}
