package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
)

// runForm is the HTML form model for creating and editing runs.
type runForm struct {
	TestName  string              `schema:"testName"`
	TimeStart store.LocalDateTime `schema:"timeStart"`
	TimeEnd   store.LocalDateTime `schema:"timeEnd"`
	Duration  float64             `schema:"duration"`
}

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	dec.RegisterConverter(store.LocalDateTime{}, func(s string) reflect.Value {
		v, err := store.ParseLocalDateTime(s)
		if err != nil {
			return reflect.Value{}
		}

		return reflect.ValueOf(v)
	})

	return dec
}

// decodeRunForm binds the posted form onto a new Run.
func decodeRunForm(r *http.Request) (*store.Run, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	// Blank inputs bind to zero values.
	values := make(url.Values, len(r.PostForm))

	for k, vs := range r.PostForm {
		if len(vs) > 0 && strings.TrimSpace(vs[len(vs)-1]) != "" {
			values[k] = vs
		}
	}

	var form runForm
	if err := formDecoder.Decode(&form, values); err != nil {
		return nil, err
	}

	if math.IsNaN(form.Duration) || math.IsInf(form.Duration, 0) {
		return nil, fmt.Errorf("duration must be a finite number")
	}

	return &store.Run{
		TestName:  form.TestName,
		TimeStart: form.TimeStart,
		TimeEnd:   form.TimeEnd,
		Duration:  form.Duration,
	}, nil
}

// parseRunID reads the {id} path parameter. Ids are limited to the
// positive int64 range the database columns hold.
func parseRunID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 63)
	if err != nil {
		return 0, err
	}

	return uint(id), nil
}

func (s *server) redirectToList(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/runs", http.StatusFound)
}

// findRun loads the run named by the path and writes the error response
// itself when it cannot.
func (s *server) findRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	id, err := parseRunID(r)
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)

		return nil, false
	}

	run, err := s.store.Runs().FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)

			return nil, false
		}

		s.log.WithError(err).WithField("id", id).Error("Failed to load run")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return nil, false
	}

	return run, true
}

// handleListRuns renders every stored run.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.Runs().FindAll(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.render(w, http.StatusOK, viewList, pageData{
		Title: "Runs",
		Runs:  runs,
	})
}

// handleNewRunForm renders an empty run form.
func (s *server) handleNewRunForm(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, viewForm, pageData{
		Title:  "New run",
		Run:    &store.Run{},
		Action: "/runs",
	})
}

// handleCreateRun persists a run from the form and returns to the list.
func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	run, err := decodeRunForm(r)
	if err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)

		return
	}

	if err := s.store.Runs().Save(r.Context(), run); err != nil {
		s.log.WithError(err).Error("Failed to create run")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.log.WithField("id", run.ID).Debug("Run created")

	s.redirectToList(w, r)
}

// handleEditRunForm renders the form pre-filled with an existing run.
func (s *server) handleEditRunForm(w http.ResponseWriter, r *http.Request) {
	run, ok := s.findRun(w, r)
	if !ok {
		return
	}

	s.render(w, http.StatusOK, viewForm, pageData{
		Title:  "Edit run",
		Run:    run,
		Action: "/runs/" + strconv.FormatUint(uint64(run.ID), 10),
	})
}

// handleUpdateRun overwrites the run named by the path with the form
// values. The path id wins over any id in the form.
func (s *server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)

		return
	}

	run, err := decodeRunForm(r)
	if err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)

		return
	}

	run.ID = id

	if err := s.store.Runs().Save(r.Context(), run); err != nil {
		s.log.WithError(err).WithField("id", id).Error("Failed to update run")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.log.WithField("id", id).Debug("Run updated")

	s.redirectToList(w, r)
}

// handleConfirmDeleteRun renders the delete confirmation page.
func (s *server) handleConfirmDeleteRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.findRun(w, r)
	if !ok {
		return
	}

	s.render(w, http.StatusOK, viewConfirmDelete, pageData{
		Title: "Delete run",
		Run:   run,
	})
}

// handleDeleteRun removes the run. Missing runs are ignored.
func (s *server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)

		return
	}

	if err := s.store.Runs().DeleteByID(r.Context(), id); err != nil {
		s.log.WithError(err).WithField("id", id).Error("Failed to delete run")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.log.WithField("id", id).Debug("Run deleted")

	s.redirectToList(w, r)
}

// handleRunReport renders the read-only report for one run.
func (s *server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.findRun(w, r)
	if !ok {
		return
	}

	s.render(w, http.StatusOK, viewReport, pageData{
		Title: run.TestName,
		Run:   run,
	})
}
