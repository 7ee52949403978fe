package http

import (
	"encoding/json"
	"net/http"

	"github.com/matryer/way"

	"github.com/parleyhq/parley/types"
)

func (h *handler) blockUser(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in types.BlockUser
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	if err := h.svc.BlockUser(r.Context(), in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unblockUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.UnblockUser{BlockedID: way.Param(ctx, "user_id")}
	if err := h.svc.UnblockUser(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) blockedUsers(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.BlockedUsers(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if out == nil {
		out = []types.User{}
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) createReport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in types.CreateReport
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	out, err := h.svc.CreateReport(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusCreated)
}
