// Package render turns page data into the HTML responses of the portal.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates
var templatesFS embed.FS

// Page names accepted by Render.
const (
	PageHome    = "home"
	PageSignup  = "signup"
	PageLogin   = "login"
	PageMembers = "members"
	PageMessage = "message"
	PageError   = "error"
)

var pages = []string{PageHome, PageSignup, PageLogin, PageMembers, PageMessage, PageError}

// HomeData drives the home page. Username is shown only when Authenticated.
type HomeData struct {
	Authenticated bool
	Username      string
}

// MembersData drives the members page. Image selects /image<N>.gif.
type MembersData struct {
	Username string
	Image    int
}

// MessageData is an outcome message with an optional retry link.
type MessageData struct {
	Message  string
	RetryURL string
}

// Renderer holds the parsed page templates. Safe for concurrent use.
type Renderer struct {
	templates map[string]*template.Template
}

// New parses every page against the shared layout.
func New() (*Renderer, error) {
	layout, err := templatesFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		content, err := templatesFS.ReadFile("templates/" + name + ".html")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		t, err := template.New(name).Parse(string(layout))
		if err != nil {
			return nil, fmt.Errorf("parse layout for %s: %w", name, err)
		}
		if _, err := t.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render executes page name with data and writes it with status. Nothing is
// written if execution fails; the client then gets a plain 500.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		slog.Error("render: unknown page", "page", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("render: template execute", "page", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Message renders an outcome message with a retry link at 200, like every
// recoverable form error.
func (r *Renderer) Message(w http.ResponseWriter, message, retryURL string) {
	r.Render(w, http.StatusOK, PageMessage, MessageData{Message: message, RetryURL: retryURL})
}

// InternalError renders the generic 500 page.
func (r *Renderer) InternalError(w http.ResponseWriter) {
	r.Render(w, http.StatusInternalServerError, PageError, nil)
}
