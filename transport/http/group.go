package http

import (
	"encoding/json"
	"net/http"

	"github.com/matryer/way"

	"github.com/parleyhq/parley/types"
)

func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in types.CreateGroup
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	out, err := h.svc.CreateGroup(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusCreated)
}

func (h *handler) addMembers(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.AddMembers
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.ConversationID = way.Param(ctx, "conversation_id")
	if err := h.svc.AddMembers(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeMembers(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.RemoveMembers
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.ConversationID = way.Param(ctx, "conversation_id")
	if err := h.svc.RemoveMembers(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) leaveGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.LeaveGroup{ConversationID: way.Param(ctx, "conversation_id")}
	if err := h.svc.LeaveGroup(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) renameGroup(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.RenameGroup
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.ConversationID = way.Param(ctx, "conversation_id")
	if err := h.svc.RenameGroup(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changeGroupAvatar(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.ChangeGroupAvatar
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.ConversationID = way.Param(ctx, "conversation_id")
	if err := h.svc.ChangeGroupAvatar(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
