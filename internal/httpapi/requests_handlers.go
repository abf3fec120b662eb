package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"mototumen.org/internal/auth"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/moderation"
)

type submitRequestBody struct {
	moderation.Metadata
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

type rejectRequestBody struct {
	Comment string `json:"comment"`
}

type listRequestsResponse struct {
	Items []moderation.Request `json:"items"`
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRequestFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.svc.ListRequests(r.Context(), principal(r), filter)
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listRequestsResponse{Items: items})
}

func parseRequestFilter(r *http.Request) (moderation.RequestFilter, error) {
	q := r.URL.Query()
	f := moderation.RequestFilter{
		Type:        moderation.OrgType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
		Status:      moderation.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		SubmitterID: strings.TrimSpace(q.Get("user_id")),
	}
	if f.Type != "" && !slices.Contains(moderation.OrgTypes, f.Type) {
		return f, fmt.Errorf("unknown organization type %q", f.Type)
	}
	if f.Status != "" && !slices.Contains(moderation.Statuses, f.Status) {
		return f, fmt.Errorf("unknown status %q", f.Status)
	}
	return f, nil
}

func (a *API) submitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	contact := moderation.Submitter{Name: body.UserName, Email: body.UserEmail}
	req, err := a.svc.SubmitRequest(r.Context(), principal(r), contact, body.Metadata)
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	w.Header().Set("Location", "/v1/organization-requests/"+req.ID)
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) editRequest(w http.ResponseWriter, r *http.Request) {
	var meta moderation.Metadata
	if err := decodeJSON(r, &meta); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.EditRequest(r.Context(), principal(r), chi.URLParam(r, "requestID"), meta)
	if err != nil {
		handleServiceError(w, r, err, requestSnapshot(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) approveRequest(w http.ResponseWriter, r *http.Request) {
	a.decide(w, r, a.svc.Approve)
}

func (a *API) archiveRequest(w http.ResponseWriter, r *http.Request) {
	a.decide(w, r, a.svc.Archive)
}

func (a *API) rejectRequest(w http.ResponseWriter, r *http.Request) {
	var body rejectRequestBody
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	a.decide(w, r, func(ctx context.Context, actor auth.Principal, id string) (moderation.Request, error) {
		return a.svc.Reject(ctx, actor, id, body.Comment)
	})
}

func (a *API) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, auth.Principal, string) (moderation.Request, error)) {
	res, err := fn(r.Context(), principal(r), chi.URLParam(r, "requestID"))
	if err != nil {
		handleServiceError(w, r, err, requestSnapshot(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) pendingCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.svc.PendingCounts(r.Context(), principal(r))
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *API) directory(w http.ResponseWriter, r *http.Request) {
	listing, err := a.svc.Directory(r.Context(), directory.ParseFacet(r.URL.Query().Get("facet")))
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func requestSnapshot(req moderation.Request) any {
	if req.ID == "" {
		return nil
	}
	return req
}
