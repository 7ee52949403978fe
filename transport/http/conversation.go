package http

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/matryer/way"

	"github.com/parleyhq/parley/types"
)

func (h *handler) createDirectConversation(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in types.CreateDirectConversation
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	out, err := h.svc.CreateDirectConversation(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusCreated)
}

func (h *handler) conversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageArgs, err := parsePageArgs(q)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	in := types.ListConversations{
		PageArgs: pageArgs,
		Archived: q.Get("archived") == "true",
	}

	out, err := h.svc.Conversations(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) conversation(w http.ResponseWriter, r *http.Request) {
	if a, _, err := mime.ParseMediaType(r.Header.Get("Accept")); err == nil && a == "text/event-stream" {
		h.conversationStream(w, r)
		return
	}

	ctx := r.Context()

	in := types.RetrieveConversation{ConversationID: way.Param(ctx, "conversation_id")}
	out, err := h.svc.Conversation(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) conversationStream(w http.ResponseWriter, r *http.Request) {
	f, ok := w.(http.Flusher)
	if !ok {
		h.respondErr(w, errStreamingUnsupported)
		return
	}

	ctx := r.Context()

	ee, err := h.svc.ConversationStream(ctx, way.Param(ctx, "conversation_id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}

	header := w.Header()
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("Content-Type", "text/event-stream; charset=utf-8")

	for ev := range ee {
		h.writeSSE(w, ev)
		f.Flush()
	}
}

func (h *handler) setConversationFlag(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.SetConversationFlag
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.ConversationID = way.Param(ctx, "conversation_id")
	if err := h.svc.SetConversationFlag(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) markConversationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.MarkConversationRead{ConversationID: way.Param(ctx, "conversation_id")}
	if err := h.svc.MarkConversationRead(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.DeleteConversation{ConversationID: way.Param(ctx, "conversation_id")}
	if err := h.svc.DeleteConversation(ctx, in); err != nil {
		h.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
