package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/matryer/way"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/service"
)

type handler struct {
	svc     *service.Service
	logger  *slog.Logger
	promReg *prometheus.Registry

	once    sync.Once
	handler http.Handler
}

func New(svc *service.Service, logger *slog.Logger, promReg *prometheus.Registry) http.Handler {
	return &handler{
		svc:     svc,
		logger:  logger,
		promReg: promReg,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.once.Do(h.init)
	h.handler.ServeHTTP(w, r)
}

func (h *handler) init() {
	r := way.NewRouter()

	r.HandleFunc("POST", "/api/users", h.createUser)
	r.HandleFunc("GET", "/api/users/:user_id", h.user)
	r.HandleFunc("GET", "/api/users/:user_id/can-message", h.canMessage)
	r.HandleFunc("POST", "/api/users/:user_id/toggle-follow", h.toggleFollow)
	r.HandleFunc("PUT", "/api/messaging-policy", h.setMessagingPolicy)

	r.HandleFunc("POST", "/api/conversations", h.createDirectConversation)
	r.HandleFunc("GET", "/api/conversations", h.conversations)
	r.HandleFunc("GET", "/api/conversations/:conversation_id", h.conversation)
	r.HandleFunc("DELETE", "/api/conversations/:conversation_id", h.deleteConversation)
	r.HandleFunc("PUT", "/api/conversations/:conversation_id/flags", h.setConversationFlag)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/read", h.markConversationRead)

	r.HandleFunc("GET", "/api/requests", h.requests)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/accept", h.acceptRequest)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/decline", h.declineRequest)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/request-read", h.markRequestRead)

	r.HandleFunc("POST", "/api/attachments", h.uploadAttachments)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/messages", h.createMessage)
	r.HandleFunc("GET", "/api/conversations/:conversation_id/messages", h.messages)
	r.HandleFunc("PUT", "/api/messages/:message_id", h.editMessage)
	r.HandleFunc("DELETE", "/api/messages/:message_id", h.deleteMessage)
	r.HandleFunc("POST", "/api/messages/:message_id/toggle-reaction", h.toggleReaction)
	r.HandleFunc("POST", "/api/messages/:message_id/toggle-pin", h.toggleMessagePin)
	r.HandleFunc("POST", "/api/messages/:message_id/toggle-star", h.toggleMessageStar)

	r.HandleFunc("POST", "/api/groups", h.createGroup)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/members", h.addMembers)
	r.HandleFunc("DELETE", "/api/conversations/:conversation_id/members", h.removeMembers)
	r.HandleFunc("POST", "/api/conversations/:conversation_id/leave", h.leaveGroup)
	r.HandleFunc("PUT", "/api/conversations/:conversation_id/name", h.renameGroup)
	r.HandleFunc("PUT", "/api/conversations/:conversation_id/avatar", h.changeGroupAvatar)

	r.HandleFunc("POST", "/api/blocks", h.blockUser)
	r.HandleFunc("DELETE", "/api/blocks/:user_id", h.unblockUser)
	r.HandleFunc("GET", "/api/blocks", h.blockedUsers)
	r.HandleFunc("POST", "/api/reports", h.createReport)

	r.HandleFunc("GET", "/api/notifications", h.notifications)
	r.HandleFunc("GET", "/api/notifications/unread", h.hasUnreadNotifications)
	r.HandleFunc("POST", "/api/notifications/read", h.markNotificationsRead)
	r.HandleFunc("POST", "/api/notifications/:notification_id/read", h.markNotificationRead)

	r.Handle("GET", "/metrics", promhttp.HandlerFor(h.promReg, promhttp.HandlerOpts{}))

	h.handler = h.withUser(r)
}

// withUser resolves the authenticated user from the bearer token. Identity
// is external; the token is the user id issued by the auth gateway in front
// of this service.
func (h *handler) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		user, err := h.svc.User(ctx, token)
		if err != nil {
			h.respondErr(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(ctx, user)))
	})
}
