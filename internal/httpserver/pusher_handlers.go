package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"mchat/internal/domain"
	"mchat/internal/realtime"
	"mchat/internal/service"
)

// handlePusherAuth signs private-channel subscriptions. Clients may only
// subscribe to conversations they are members of.
func handlePusherAuth(pub *realtime.PusherPublisher, convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}

		convID, ok := conversationIDFromAuthBody(string(body))
		if !ok {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		// Membership check; Get returns ErrForbidden for outsiders.
		if _, err := convSvc.Get(r.Context(), convID, user.ID); err != nil {
			writeError(w, err)
			return
		}

		resp, err := pub.AuthorizePrivateChannel(body)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	}
}

// conversationIDFromAuthBody extracts the conversation id from the
// form-encoded auth request (channel_name=private-conversation-<id>).
func conversationIDFromAuthBody(body string) (int64, bool) {
	for _, pair := range strings.Split(body, "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found || k != "channel_name" {
			continue
		}
		name := strings.TrimPrefix(v, "private-")
		idStr, ok := strings.CutPrefix(name, "conversation-")
		if !ok {
			return 0, false
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
