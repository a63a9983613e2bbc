// Package widget serves the minimal browser surface: the current activity
// and a single Done action, plus the query-parameter triggers the full app
// exposes (one-shot completion, credential bootstrap).
package widget

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ganot/dayloop/internal/routine"
)

// RoutineService is the tracker slice the widget needs.
type RoutineService interface {
	CurrentActivity(now time.Time) *routine.Activity
	AdvanceCursorPastCompleted(now time.Time)
	Complete(ctx context.Context, now time.Time) *routine.Activity
	Status() routine.Status
}

// CredentialSink accepts an API key supplied through the bootstrap query
// parameter.
type CredentialSink interface {
	SetAPIKey(key string)
}

// Handler serves the widget routes.
type Handler struct {
	service RoutineService
	creds   CredentialSink
	logger  *slog.Logger
	now     func() time.Time
}

// Options configures a Handler.
type Options struct {
	Service RoutineService
	Creds   CredentialSink
	Logger  *slog.Logger
	Now     func() time.Time // nil means time.Now
}

// NewHandler builds the widget HTTP handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{service: opts.Service, creds: opts.Creds, logger: logger, now: now}
}

// Routes mounts the widget endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/", h.root)
	r.Get("/widget", h.widget)
	r.Post("/widget/done", h.done)
	r.Get("/healthz", h.healthz)

	return r
}

// root redirects ?view=widget to the widget path; everything else gets the
// widget too, since the widget is the only browser surface this server has.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	target := "/widget"
	if q := passthroughQuery(r.URL.Query()); q != "" {
		target += "?" + q
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// widget renders the current activity. Two query parameters are one-shot
// triggers, consumed and then stripped by redirecting to the bare path so
// they never survive in browser history: complete=1 records the current
// activity as done, api-key=<k> stores a credential.
func (h *Handler) widget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	consumed := false

	if key := q.Get("api-key"); key != "" && h.creds != nil {
		h.logger.Info("api key supplied via widget bootstrap")
		h.creds.SetAPIKey(key)
		consumed = true
	}
	if q.Get("complete") == "1" {
		if done := h.service.Complete(r.Context(), h.now()); done != nil {
			h.logger.Info("activity completed via widget url", "activity", done.Name)
		}
		consumed = true
	}
	if consumed {
		http.Redirect(w, r, "/widget", http.StatusSeeOther)
		return
	}

	h.render(w, r)
}

// done is the button path: complete the current activity and show the next.
func (h *Handler) done(w http.ResponseWriter, r *http.Request) {
	if done := h.service.Complete(r.Context(), h.now()); done != nil {
		h.logger.Info("activity completed via widget", "activity", done.Name)
	}
	http.Redirect(w, r, "/widget", http.StatusSeeOther)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok " + h.service.Status().State.String()))
}

type widgetData struct {
	Activity *routine.Activity
	Time     string
	Empty    bool
	Offline  bool
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	// The widget tends to stay open all day while completions arrive from
	// other surfaces. Reconcile the cursor before showing anything.
	h.service.AdvanceCursorPastCompleted(now)
	data := widgetData{
		Offline: h.service.Status().State == routine.StateOffline,
	}
	if current := h.service.CurrentActivity(now); current != nil {
		data.Activity = current
		data.Time = current.Time
	} else {
		data.Empty = true
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := widgetTemplate.Execute(w, data); err != nil {
		h.logger.Error("widget render failed", "error", err)
	}
}

// passthroughQuery keeps only the parameters the widget itself consumes.
func passthroughQuery(q url.Values) string {
	kept := url.Values{}
	for _, key := range []string{"complete", "api-key"} {
		if v := q.Get(key); v != "" {
			kept.Set(key, v)
		}
	}
	return kept.Encode()
}

var widgetTemplate = template.Must(template.New("widget").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>dayloop</title>
<style>
body { font-family: -apple-system, sans-serif; text-align: center; margin-top: 4rem; }
.activity { font-size: 2rem; margin: 1rem; }
.time { color: #666; }
.offline { color: #b00; font-size: 0.8rem; }
button { font-size: 1.2rem; padding: 0.5rem 2rem; }
</style>
</head>
<body>
{{if .Empty}}
<p class="activity">Nothing scheduled today</p>
{{else}}
<p class="activity">{{.Activity.Name}}</p>
{{if .Time}}<p class="time">{{.Time}}</p>{{end}}
<form method="post" action="/widget/done"><button type="submit">Done</button></form>
{{end}}
{{if .Offline}}<p class="offline">offline mode</p>{{end}}
</body>
</html>
`))
