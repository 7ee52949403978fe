package http

import (
	"encoding/json"
	"net/http"

	"github.com/matryer/way"

	"github.com/parleyhq/parley/types"
)

func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.CreateMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.ConversationID = way.Param(ctx, "conversation_id")
	out, err := h.svc.CreateMessage(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusCreated)
}

const maxUploadSize = 32 << 20

func (h *handler) uploadAttachments(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	var uploads []types.Upload
	for _, fh := range r.MultipartForm.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			h.respondErr(w, errBadRequest)
			return
		}
		defer f.Close()

		u := types.Upload{
			Path:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			FileSize:    uint64(fh.Size),
		}
		u.SetReader(f)
		uploads = append(uploads, u)
	}

	out, err := h.svc.UploadAttachments(r.Context(), uploads)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if out == nil {
		out = []types.Attachment{}
	}

	h.respond(w, out, http.StatusCreated)
}

func (h *handler) messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pageArgs, err := parsePageArgs(r.URL.Query())
	if err != nil {
		h.respondErr(w, err)
		return
	}

	in := types.ListMessages{
		ConversationID: way.Param(ctx, "conversation_id"),
		PageArgs:       pageArgs,
	}

	out, err := h.svc.Messages(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) editMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.EditMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.MessageID = way.Param(ctx, "message_id")
	out, err := h.svc.EditMessage(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.DeleteMessage{MessageID: way.Param(ctx, "message_id")}
	out, err := h.svc.DeleteMessage(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, out, http.StatusOK)
}

func (h *handler) toggleReaction(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	ctx := r.Context()

	var in types.ToggleReaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondErr(w, errBadRequest)
		return
	}

	in.MessageID = way.Param(ctx, "message_id")
	out, added, err := h.svc.ToggleReaction(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, map[string]any{"message": out, "added": added}, http.StatusOK)
}

func (h *handler) toggleMessagePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.ToggleMessagePin{MessageID: way.Param(ctx, "message_id")}
	out, pinned, err := h.svc.ToggleMessagePin(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, map[string]any{"message": out, "pinned": pinned}, http.StatusOK)
}

func (h *handler) toggleMessageStar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := types.ToggleMessageStar{MessageID: way.Param(ctx, "message_id")}
	out, starred, err := h.svc.ToggleMessageStar(ctx, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respond(w, map[string]any{"message": out, "starred": starred}, http.StatusOK)
}
