package templates

import (
	"strings"
	"time"
)

// Brand carries the company fields shared by every email.
type Brand struct {
	CompanyName    string
	CompanyAddress string
	AppName        string
	LogoURL        string
	SupportURL     string
	PrivacyURL     string
	UnsubscribeURL string
	LoginURL       string
}

// Option pattern
type Option func(*EmailData)

func WithLoginURL(url string) Option {
	return func(d *EmailData) {
		if s := strings.TrimSpace(url); s != "" {
			d.LoginURL = s
		}
	}
}

// WithDormantOn sets the dormancy date, rendered as a calendar day in loc.
func WithDormantOn(t time.Time, loc *time.Location) Option {
	return func(d *EmailData) {
		if loc == nil {
			loc = time.UTC
		}
		d.DormantOn = t
		d.DormantOnText = t.In(loc).Format("02 January 2006")
	}
}

func WithDeleteAfter(period string) Option {
	return func(d *EmailData) { d.DeleteAfter = period }
}

func NewBaseEmailData(b Brand, typ, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		RecipientEmail: email,
		Type:           typ,

		CompanyName:    b.CompanyName,
		CompanyAddress: b.CompanyAddress,
		AppName:        b.AppName,

		LogoURL:        b.LogoURL,
		SupportURL:     b.SupportURL,
		PrivacyURL:     b.PrivacyURL,
		UnsubscribeURL: b.UnsubscribeURL,
		LoginURL:       b.LoginURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewDormancyNoticeData(b Brand, name, email string, opts ...Option) map[string]any {
	return ToMap(NewBaseEmailData(b, DormancyNotice, name, email, opts...))
}
