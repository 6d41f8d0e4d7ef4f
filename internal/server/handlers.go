package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"xrelay/pkg/errors"
	"xrelay/pkg/relay"
	"xrelay/pkg/xcom"
)

type listRequest struct {
	UserID string `json:"user_id"`
	Cursor string `json:"cursor,omitempty"`
}

type listResponse struct {
	Followers  []xcom.FollowerRecord `json:"followers"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type removeRequest struct {
	UserID  string   `json:"user_id"`
	Targets []string `json:"targets"`
}

type removeResponse struct {
	Outcomes []relay.RemovalOutcome `json:"outcomes"`
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  errors.Kind `json:"kind,omitempty"`
}

// credentialsFromRequest builds the per-request bundle from the headers the
// browser captured. The bundle lives on the stack of this request only.
func credentialsFromRequest(r *http.Request) xcom.CredentialBundle {
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return xcom.CredentialBundle{
		BearerToken: strings.TrimSpace(bearer),
		CSRFToken:   r.Header.Get("X-Csrf-Token"),
		Cookies:     xcom.ParseCookieHeader(r.Header.Get("Cookie")),
		UserAgent:   r.UserAgent(),
	}
}

func (s *Server) handleListFollowers(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}

	page, err := s.relay.ListFollowers(r.Context(), credentialsFromRequest(r), req.UserID, req.Cursor)
	if err != nil {
		writeRelayError(w, err)
		return
	}

	resp := listResponse{Followers: page.Followers, NextCursor: page.NextCursor}
	if resp.Followers == nil {
		resp.Followers = []xcom.FollowerRecord{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveFollowers(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}

	outcomes, err := s.relay.RemoveFollowers(r.Context(), credentialsFromRequest(r), req.UserID, req.Targets)
	if err != nil {
		// The caller is gone; there is nobody to answer.
		if stderrors.Is(err, context.Canceled) {
			return
		}
		writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, removeResponse{Outcomes: outcomes})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeRelayError maps a classified error onto its HTTP status, carrying
// the upstream Retry-After hint through on rate limits.
func writeRelayError(w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)
	if retryAfter := errors.RetryAfterOf(err); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	writeJSON(w, errors.HTTPStatus(kind), errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
