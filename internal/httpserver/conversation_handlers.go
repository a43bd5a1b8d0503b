package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mchat/internal/domain"
	"mchat/internal/service"
)

type conversationCreateRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	IsGroup        bool    `json:"is_group"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

type conversationUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func conversationID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidInput
	}
	return id, nil
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}

		conv, err := convSvc.Create(r.Context(), service.ConversationCreateInput{
			Name:           req.Name,
			Description:    req.Description,
			IsGroup:        req.IsGroup,
			ParticipantIDs: req.ParticipantIDs,
		}, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}

		q := r.URL.Query()
		f := domain.ConversationListFilter{
			Query:      q.Get("q"),
			UnreadOnly: q.Get("unread") == "true",
		}
		f.Page, _ = strconv.Atoi(q.Get("page"))
		f.PageSize, _ = strconv.Atoi(q.Get("page_size"))
		if v := q.Get("is_group"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, domain.ErrInvalidInput)
				return
			}
			f.IsGroup = &b
		}

		convs, err := convSvc.List(r.Context(), user.ID, f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		id, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		conv, err := convSvc.Get(r.Context(), id, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleUpdateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		id, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req conversationUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		conv, err := convSvc.Update(r.Context(), id, user.ID, service.ConversationPatch{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleDeleteConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		id, err := conversationID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := convSvc.Delete(r.Context(), id, user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
