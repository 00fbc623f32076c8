package web

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/notify"
	"github.com/hpungsan/sitediff/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	renderer *Renderer
}

// HandleList handles GET /urls: the tracked URLs and their last check.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.List(h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.respond(w, r, "list", ListPageData{
		PageData: h.renderer.page("Tracked URLs"),
		Items:    result.Items,
	}, result)
}

// HandleHistory handles GET /urls/history?url=...: checks of one URL, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("url is required"))
		return
	}

	result, err := ops.History(h.env, ops.HistoryInput{
		URL:    target,
		Limit:  parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.respond(w, r, "history", HistoryPageData{
		PageData:   h.renderer.page(target),
		URL:        target,
		Items:      result.Items,
		Pagination: result.Pagination,
	}, result)
}

// HandleCheck handles GET /checks/{id}: one check with its rendered diff.
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	check, err := ops.GetCheck(h.env, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.respond(w, r, "check", CheckPageData{
		PageData: h.renderer.page("Check " + check.ID),
		Check:    check,
	}, check)
}

// HandleRemove handles POST /urls/remove: stop tracking a URL.
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	result, err := ops.Remove(h.env, ops.RemoveInput{URL: r.FormValue("url")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	switch {
	case isHTMX(r):
		w.Header().Set("HX-Redirect", "/urls")
		w.WriteHeader(http.StatusOK)
	case wantsJSON(r):
		renderJSON(w, http.StatusOK, result)
	default:
		http.Redirect(w, r, "/urls", http.StatusFound)
	}
}

// HandleRun handles POST /run: check every URL once and show the digest.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Run(r.Context(), h.env, ops.RunInput{})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	digest, err := notify.RenderDigest(notify.Digest(result.Results, time.Now()))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	h.renderer.render(w, r, http.StatusOK, "run", RunPageData{
		PageData: h.renderer.page("Run " + result.RunID),
		Run:      result,
		Digest:   template.HTML(digest),
	})
}

// parseIntParam reads an integer query parameter, falling back to def when
// it is missing or malformed.
func parseIntParam(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return def
}
