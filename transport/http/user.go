package http

import (
	"encoding/json"
	"net/http"

	"github.com/matryer/way"

	"github.com/parleyhq/parley/types"
)

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in types.CreateUser
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	out, err := h.svc.CreateUser(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusCreated)
}

func (h *handler) user(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	out, err := h.svc.User(ctx, way.Param(ctx, "user_id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) canMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	out, err := h.svc.CanMessage(ctx, way.Param(ctx, "user_id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) toggleFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.ToggleFollow{FolloweeID: way.Param(ctx, "user_id")}
	following, err := h.svc.ToggleFollow(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, map[string]bool{"following": following}, http.StatusOK)
}

func (h *handler) setMessagingPolicy(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in types.SetMessagingPolicy
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	if err := h.svc.SetMessagingPolicy(r.Context(), in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
