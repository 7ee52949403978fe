package http

import (
	"net/http"

	"github.com/matryer/way"

	"github.com/parleyhq/parley/types"
)

func (h *handler) requests(w http.ResponseWriter, r *http.Request) {
	pageArgs, err := parsePageArgs(r.URL.Query())
	if err != nil {
		h.respondErr(w, err)
		return
	}

	out, err := h.svc.Requests(r.Context(), types.ListRequests{PageArgs: pageArgs})
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.AcceptRequest{ConversationID: way.Param(ctx, "conversation_id")}
	out, err := h.svc.AcceptRequest(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) declineRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.DeclineRequest{ConversationID: way.Param(ctx, "conversation_id")}
	out, err := h.svc.DeclineRequest(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) markRequestRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.MarkRequestRead{ConversationID: way.Param(ctx, "conversation_id")}
	if err := h.svc.MarkRequestRead(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
