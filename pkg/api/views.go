package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/perfstor/pkg/api/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// View names.
const (
	viewList          = "list.html"
	viewForm          = "form.html"
	viewReport        = "report.html"
	viewConfirmDelete = "confirm_delete.html"
)

// views holds one template set per page, each combined with the layout.
type views struct {
	pages map[string]*template.Template
}

var viewFuncs = template.FuncMap{
	"datetimeLocal": func(t store.LocalDateTime) string {
		return t.String()
	},
	"seconds": func(secs float64) string {
		return humanDuration(time.Duration(secs * float64(time.Second)))
	},
	"elapsed": func(r store.Run) string {
		if r.TimeStart.IsZero() || r.TimeEnd.IsZero() {
			return "unknown"
		}

		return humanDuration(r.Elapsed())
	},
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		return "-" + units.HumanDuration(-d)
	}

	return units.HumanDuration(d)
}

func mustParseViews() *views {
	pages := []string{viewList, viewForm, viewReport, viewConfirmDelete}
	v := &views{pages: make(map[string]*template.Template, len(pages))}

	for _, page := range pages {
		v.pages[page] = template.Must(
			template.New(page).Funcs(viewFuncs).ParseFS(
				templateFS, "templates/layout.html", "templates/"+page,
			),
		)
	}

	return v
}

// pageData is the model passed to every view.
type pageData struct {
	Title  string
	Runs   []store.Run
	Run    *store.Run
	Action string
}

// render executes page into a buffer and writes it with status.
func (s *server) render(w http.ResponseWriter, status int, page string, data pageData) {
	t, ok := s.views.pages[page]
	if !ok {
		s.log.WithField("page", page).Error("Template not found")
		http.Error(w, "Page not found", http.StatusNotFound)

		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.WithError(err).WithField("page", page).Error("Template error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
