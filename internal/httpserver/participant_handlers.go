package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mchat/internal/domain"
	"mchat/internal/service"
)

type addParticipantsRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

type updateRoleRequest struct {
	Role domain.Role `json:"role"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func participantID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidInput
	}
	return id, nil
}

func handleAddParticipants(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		convID, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req addParticipantsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		conv, err := convSvc.AddParticipants(r.Context(), convID, user.ID, req.UserIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleRemoveParticipant(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		convID, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		targetID, err := participantID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := convSvc.RemoveParticipant(r.Context(), convID, targetID, user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUpdateParticipantRole(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		convID, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		targetID, err := participantID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req updateRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		if err := convSvc.UpdateParticipantRole(r.Context(), convID, targetID, req.Role, user.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleSetMuteStatus(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		convID, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		targetID, err := participantID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req muteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		if err := convSvc.SetMuteStatus(r.Context(), convID, targetID, req.Muted, user.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleLeaveConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		convID, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := convSvc.Leave(r.Context(), convID, user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
