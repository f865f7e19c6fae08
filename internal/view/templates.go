package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/saas-project/saas/apitypes"
	"github.com/saas-project/saas/internal/shared"
	"github.com/saas-project/saas/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *apitypes.User
	Data        any
}

// Options tune template parsing.
type Options struct {
	// Strict makes a missing map key an execution error instead of "<no value>".
	Strict bool
}

// NewEngine parses the embedded templates.
func NewEngine(opts Options) (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"displayName": func(u *apitypes.User) string {
			if u == nil {
				return ""
			}
			if name := u.DisplayName(); name != "" {
				return name
			}
			return u.Email
		},
	}
	root := template.New("root").Funcs(funcMap)
	if opts.Strict {
		root = root.Option("missingkey=error")
	}
	tpl, err := root.ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template and writes it with status. Nothing is
// written when execution fails.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return fmt.Errorf("view: execute %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Fragment executes a partial and returns its output for embedding.
func (e *Engine) Fragment(name string, data TemplateData) (template.HTML, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("view: execute %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

// Lookup reports whether a template with name exists.
func (e *Engine) Lookup(name string) bool {
	return e != nil && e.templates.Lookup(name) != nil
}
