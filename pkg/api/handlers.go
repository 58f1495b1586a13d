package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/draft"
	"fundwizard/pkg/executor"
	"fundwizard/pkg/funds"
	"fundwizard/pkg/presenter"
	"fundwizard/pkg/remote"
	"fundwizard/pkg/wizard"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type beginResponse struct {
	Draft draft.Draft `json:"draft"`
	Step  wizard.Step `json:"step"`
	Path  string      `json:"path"`
}

type stepResponse struct {
	Step  wizard.Step `json:"step"`
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Next  wizard.Step `json:"next,omitempty"`
}

type screenResponse struct {
	ID          string         `json:"id"`
	Kind        draft.Kind     `json:"kind"`
	View        presenter.View `json:"view"`
	Redirect    string         `json:"redirect,omitempty"`
	NavigatedTo string         `json:"navigatedTo,omitempty"`
}

type pathResponse struct {
	Path string `json:"path"`
}

func (s *Server) pathKind(w http.ResponseWriter, r *http.Request) (string, draft.Kind, bool) {
	vars := mux.Vars(r)
	kind, err := draft.ParseKind(vars["kind"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", "", false
	}
	return vars["session"], kind, true
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	session, kind, ok := s.pathKind(w, r)
	if !ok {
		return
	}

	_, d := s.deps.Wizards.Begin(r.Context(), session, kind)
	first := wizard.First(kind)
	writeJSON(w, http.StatusCreated, beginResponse{Draft: d, Step: first, Path: wizard.Path(kind, first)})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	session, kind, ok := s.pathKind(w, r)
	if !ok {
		return
	}

	d, found := s.deps.Wizards.Store(session, kind).Get(r.Context())
	if !found {
		writeError(w, http.StatusNotFound, "no draft in progress")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	session, kind, ok := s.pathKind(w, r)
	if !ok {
		return
	}

	var p draft.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Empty() {
		writeError(w, http.StatusBadRequest, "patch changes nothing")
		return
	}

	d := s.deps.Wizards.Store(session, kind).Update(r.Context(), p)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	session, kind, ok := s.pathKind(w, r)
	if !ok {
		return
	}
	s.deps.Wizards.Abandon(r.Context(), session, kind)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s.deps.Wizards.End(r.Context(), mux.Vars(r)["session"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckStep(w http.ResponseWriter, r *http.Request) {
	session, kind, ok := s.pathKind(w, r)
	if !ok {
		return
	}
	step := wizard.Step(mux.Vars(r)["step"])
	if !wizard.HasStep(kind, step) {
		writeError(w, http.StatusNotFound, "unknown step")
		return
	}

	d, _ := s.deps.Wizards.Store(session, kind).Get(r.Context())
	resp := stepResponse{Step: step, OK: true}
	if err := wizard.CheckStep(kind, step, d); err != nil {
		resp.OK = false
		resp.Error = err.Error()
	} else if next, ok := wizard.Next(kind, step); ok {
		resp.Next = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConfirm mounts a confirmation screen. With ?wait=1 it answers once
// the screen resolves; otherwise it answers 202 and the client polls
// /screens/{id}.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	session, kind, ok := s.pathKind(w, r)
	if !ok {
		return
	}

	nav := &navigation{}
	opts := []presenter.Option{presenter.WithNavigator(nav), presenter.WithLogger(s.logger)}
	if s.deps.Invalidator != nil {
		opts = append(opts, presenter.WithInvalidator(s.deps.Invalidator))
	}
	screen := presenter.NewScreen(s.deps.Wizards.Store(session, kind), s.deps.Submitter, opts...)
	s.screens.add(&screenEntry{screen: screen, nav: nav, session: session})
	screen.Mount(r.Context())

	w.Header().Set("Location", "/screens/"+screen.ID())

	if r.URL.Query().Get("wait") != "1" {
		writeJSON(w, http.StatusAccepted, s.screenView(screen, nav))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.WaitTimeout)
	defer cancel()
	if _, err := screen.Wait(ctx); err != nil {
		writeJSON(w, http.StatusAccepted, s.screenView(screen, nav))
		return
	}
	writeJSON(w, http.StatusOK, s.screenView(screen, nav))
}

func (s *Server) screenView(screen *presenter.Screen, nav *navigation) screenResponse {
	resp := screenResponse{
		ID:          screen.ID(),
		Kind:        screen.Kind(),
		View:        screen.View(),
		NavigatedTo: nav.Path(),
	}
	if path, ok := screen.Redirect(); ok {
		resp.Redirect = path
	}
	return resp
}

func (s *Server) screen(w http.ResponseWriter, r *http.Request) (*screenEntry, bool) {
	e, ok := s.screens.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown screen")
	}
	return e, ok
}

func (s *Server) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	e, ok := s.screen(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.screenView(e.screen, e.nav))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	e, ok := s.screen(w, r)
	if !ok {
		return
	}
	path, err := e.screen.Retry()
	s.writeNavigation(w, path, err)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	e, ok := s.screen(w, r)
	if !ok {
		return
	}
	err := e.screen.GoHome(r.Context())
	s.writeNavigation(w, presenter.HomePath, err)
}

func (s *Server) handleViewReceipt(w http.ResponseWriter, r *http.Request) {
	e, ok := s.screen(w, r)
	if !ok {
		return
	}
	path, err := e.screen.ViewReceipt()
	s.writeNavigation(w, path, err)
}

func (s *Server) writeNavigation(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, presenter.ErrNotAllowed):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, pathResponse{Path: path})
	}
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	res, ok := s.deps.Submitter.Receipt(r.Context(), mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHomeSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Catalog.Home(r.Context(), s.config.AccountID)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListFunds(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.List(r.Context(), s.config.AccountID)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetFund(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Catalog.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleFundHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Catalog.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSetObjective(w http.ResponseWriter, r *http.Request) {
	var change funds.ObjectiveChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.deps.Editor.SetObjective(r.Context(), mux.Vars(r)["id"], change)
	s.writeEdit(w, err)
}

func (s *Server) handleUpdateFundData(w http.ResponseWriter, r *http.Request) {
	var change funds.DataChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.deps.Editor.UpdateData(r.Context(), mux.Vars(r)["id"], change)
	s.writeEdit(w, err)
}

func (s *Server) writeEdit(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, funds.ErrMissingFund), errors.Is(err, funds.ErrMissingReason), errors.Is(err, funds.ErrInvalidChange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeRemoteError(w, err)
	}
}

// writeRemoteError maps a fund service failure to a status and a message fit
// for the user.
func (s *Server) writeRemoteError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	msg := executor.GenericFailureMessage

	var re *remote.RemoteError
	switch {
	case errors.Is(err, cache.ErrInvalidKey):
		status = http.StatusBadRequest
		msg = err.Error()
	case cache.IsTimeout(err):
		status = http.StatusGatewayTimeout
		msg = executor.TimeoutMessage
	case cache.IsCircuitOpen(err):
		status = http.StatusServiceUnavailable
		msg = executor.UnavailableMessage
	case errors.As(err, &re) && re.Rejected():
		if re.StatusCode >= 400 {
			status = re.StatusCode
		} else {
			status = http.StatusUnprocessableEntity
		}
		if m := remote.Message(err); m != "" {
			msg = m
		}
	}

	if status >= 500 {
		s.logger.Warn("fund service request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}
