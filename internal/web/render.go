package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/db"
	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/ops"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "urls"
}

// ListPageData is the template data for the tracked URL list.
type ListPageData struct {
	PageData
	Items []ops.ListItem
}

// HistoryPageData is the template data for one URL's check history.
type HistoryPageData struct {
	PageData
	URL        string
	Items      []db.Check
	Pagination ops.Pagination
}

// CheckPageData is the template data for a single check.
type CheckPageData struct {
	PageData
	Check *db.Check
}

// RunPageData is the template data for the result of a manual run.
type RunPageData struct {
	PageData
	Run    *ops.RunOutput
	Digest template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer executes the page templates. Each page is parsed into its own
// clone of the layout so every page can define "content".
type Renderer struct {
	pages   map[string]*template.Template
	version string
	log     zerolog.Logger
}

var pageFiles = []string{"list", "history", "check", "run", "error"}

// NewRenderer parses layout.html plus <name>.html for each page. It panics
// on a template error since templates are embedded.
func NewRenderer(templateFS fs.FS, version string, log zerolog.Logger) *Renderer {
	layout := template.Must(template.New("layout").Funcs(template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"formatTime": formatTime,
		// diff.MarkupText escapes page text before wrapping it in spans.
		"diffHTML": func(s string) template.HTML { return template.HTML(s) },
	}).ParseFS(templateFS, "layout.html"))

	r := &Renderer{
		pages:   make(map[string]*template.Template, len(pageFiles)),
		version: version,
		log:     log.With().Str("component", "web").Logger(),
	}
	for _, name := range pageFiles {
		r.pages[name] = template.Must(template.Must(layout.Clone()).ParseFS(templateFS, name+".html"))
	}
	return r
}

func (r *Renderer) page(title string) PageData {
	return PageData{Title: title, Version: r.version, Nav: "urls"}
}

// respond writes payload as JSON when the client asks for it and renders the
// named page with data otherwise.
func (r *Renderer) respond(w http.ResponseWriter, req *http.Request, name string, data, payload any) {
	if wantsJSON(req) {
		renderJSON(w, http.StatusOK, payload)
		return
	}
	r.render(w, req, http.StatusOK, name, data)
}

// render executes a page into a buffer first so a template failure still
// produces a clean 500. HTMX requests get only the "content" block.
func (r *Renderer) render(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.pages[name]
	if !ok {
		r.log.Error().Str("template", name).Msg("unknown page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if isHTMX(req) {
		block = "content"
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.log.Error().Err(err).Str("template", name).Msg("render failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError answers HTMX with a fragment, JSON clients with an error
// envelope and browsers with the error page. Only internal errors are logged.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	sErr, ok := errors.As(err)
	if !ok {
		sErr = errors.NewInternal(err)
	}
	if sErr.Code == errors.ErrInternal {
		r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
	}

	switch {
	case isHTMX(req):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(sErr.Status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(sErr.Message))
	case wantsJSON(req):
		renderJSON(w, sErr.Status, map[string]any{"error": map[string]any{
			"code":    string(sErr.Code),
			"message": sErr.Message,
			"status":  sErr.Status,
		}})
	default:
		r.render(w, req, sErr.Status, "error", ErrorPageData{
			PageData:   r.page(fmt.Sprintf("Error %d", sErr.Status)),
			StatusCode: sErr.Status,
			Message:    sErr.Message,
		})
	}
}

func isHTMX(req *http.Request) bool {
	return req != nil && req.Header.Get("HX-Request") == "true"
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime renders a Unix timestamp in UTC to the minute.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}
