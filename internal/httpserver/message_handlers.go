package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mchat/internal/domain"
	"mchat/internal/service"
)

func messageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidInput
	}
	return id, nil
}

type messageCreateRequest struct {
	Content  string  `json:"content"`
	FilePath *string `json:"file_path"`
	FileType *string `json:"file_type"`
}

func handleCreateMessage(msgSvc *service.MessageService) http.HandlerFunc {
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
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}

		msg, err := msgSvc.Send(r.Context(), service.MessageCreateInput{
			ConversationID: convID,
			Content:        req.Content,
			FilePath:       req.FilePath,
			FileType:       req.FileType,
		}, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
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
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		msgs, err := msgSvc.List(r.Context(), convID, user.ID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

type messageUpdateRequest struct {
	Content string `json:"content"`
}

func handleUpdateMessage(msgSvc *service.MessageService) http.HandlerFunc {
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
		msgID, err := messageID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req messageUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}

		msg, err := msgSvc.Update(r.Context(), convID, msgID, req.Content, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleDeleteMessage(msgSvc *service.MessageService) http.HandlerFunc {
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
		msgID, err := messageID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := msgSvc.Delete(r.Context(), convID, msgID, user.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleMarkConversationRead(msgSvc *service.MessageService) http.HandlerFunc {
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
		if err := msgSvc.MarkAsRead(r.Context(), convID, user.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
