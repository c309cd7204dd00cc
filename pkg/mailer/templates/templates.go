package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmpl "html/template"
	"io"
	"reflect"
	"strings"
	"sync"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData defines the fields available to every template.
type EmailData struct {
	Name           string `json:"Name"`
	Email          string `json:"Email"`
	RecipientEmail string `json:"RecipientEmail"`
	Type           string `json:"Type"`

	CompanyName    string `json:"CompanyName"`
	CompanyAddress string `json:"CompanyAddress"`
	AppName        string `json:"AppName"`

	LogoURL        string `json:"LogoURL"`
	SupportURL     string `json:"SupportURL"`
	PrivacyURL     string `json:"PrivacyURL"`
	UnsubscribeURL string `json:"UnsubscribeURL"`
	LoginURL       string `json:"LoginURL"`

	DormantOn     time.Time `json:"DormantOn"`
	DormantOnText string    `json:"DormantOnText"`
	DeleteAfter   string    `json:"DeleteAfter"`
}

// ToMap converts EmailData to a map[string]any for EmailJob.Data
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			return fallback
		}
		if reflect.DeepEqual(value, reflect.Zero(rv.Type()).Interface()) {
			return fallback
		}
		return value
	}
}

func baseFuncs() map[string]any {
	return map[string]any{
		"upper":   strings.ToUpper,
		"default": defaultFn,
		"year":    func() int { return time.Now().Year() },
	}
}

const (
	DormancyNotice = "dormancy_notice"
)

// set is the parsed subject/text/html triple for one template name.
type set struct {
	subject *texttpl.Template
	text    *texttpl.Template
	html    *htmpl.Template
}

var parsed sync.Map // name -> *set

func parseText(file string) (*texttpl.Template, error) {
	t, err := texttpl.New(file).Funcs(texttpl.FuncMap(baseFuncs())).Option("missingkey=zero").ParseFS(FS, file)
	if err != nil {
		return nil, fmt.Errorf("parse text %q: %w", file, err)
	}
	return t, nil
}

func load(name string) (*set, error) {
	if v, ok := parsed.Load(name); ok {
		return v.(*set), nil
	}
	var (
		s   set
		err error
	)
	if s.subject, err = parseText(name + ".subject.tmpl"); err != nil {
		return nil, err
	}
	if s.text, err = parseText(name + ".text.tmpl"); err != nil {
		return nil, err
	}
	file := name + ".html.tmpl"
	if s.html, err = htmpl.New(file).Funcs(htmpl.FuncMap(baseFuncs())).Option("missingkey=zero").ParseFS(FS, file); err != nil {
		return nil, fmt.Errorf("parse html %q: %w", file, err)
	}
	v, _ := parsed.LoadOrStore(name, &s)
	return v.(*set), nil
}

type executor interface {
	Execute(w io.Writer, data any) error
	Name() string
}

func execute(t executor, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Known reports whether name has a complete template triple.
func Known(name string) bool {
	_, err := load(name)
	return err == nil
}

// Render produces subject, text and html for name from
// <name>.subject.tmpl, <name>.text.tmpl and <name>.html.tmpl.
// Templates are parsed on first use and reused afterwards.
func Render(name string, data any) (subject string, text string, html string, err error) {
	s, err := load(name)
	if err != nil {
		return "", "", "", err
	}
	if subject, err = execute(s.subject, data); err != nil {
		return "", "", "", err
	}
	if text, err = execute(s.text, data); err != nil {
		return "", "", "", err
	}
	if html, err = execute(s.html, data); err != nil {
		return "", "", "", err
	}
	return strings.TrimSpace(subject), text, html, nil
}
