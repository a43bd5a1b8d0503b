package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mchat/internal/domain"
	"mchat/internal/realtime"
	"mchat/internal/security"
)

const maxMessageRunes = 5000

// MessageService sends and lists messages. Content is encrypted at rest;
// sending bumps the conversation's last-activity timestamp and notifies the
// conversation channel.
type MessageService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	encryptor     *security.Encryptor
	publisher     realtime.Publisher
	log           zerolog.Logger

	maxPerConversation int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	encryptor *security.Encryptor,
	publisher realtime.Publisher,
	log zerolog.Logger,
	maxPerConversation int,
) *MessageService {
	return &MessageService{
		conversations:      conversations,
		participants:       participants,
		messages:           messages,
		users:              users,
		encryptor:          encryptor,
		publisher:          publisher,
		log:                log,
		maxPerConversation: maxPerConversation,
	}
}

type messageEvent struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}

type MessageCreateInput struct {
	ConversationID int64
	Content        string
	FilePath       *string
	FileType       *string
}

func (s *MessageService) Send(ctx context.Context, in MessageCreateInput, senderID int64) (*MessageResponse, error) {
	if len([]rune(in.Content)) > maxMessageRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxMessageRunes)
	}
	if in.Content == "" && (in.FilePath == nil || *in.FilePath == "") {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}

	if err := s.requireParticipant(ctx, in.ConversationID, senderID); err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	msg := &domain.Message{
		Content:        encrypted,
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		FilePath:       in.FilePath,
		FileType:       in.FileType,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	res, err := s.ToResponse(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, ChannelFor(in.ConversationID), EventMessageCreated, res); err != nil {
		s.log.Warn().
			Err(err).
			Int64("conversation_id", in.ConversationID).
			Msg("realtime publish failed")
	}
	return res, nil
}

// Update rewrites a message's content. Only the sender may edit, and a
// deleted message cannot be edited.
func (s *MessageService) Update(ctx context.Context, conversationID, messageID int64, content string, callerID int64) (*MessageResponse, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > maxMessageRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxMessageRunes)
	}

	msg, err := s.requireSender(ctx, conversationID, messageID, callerID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("%w: a deleted message cannot be edited", domain.ErrInvalidOperation)
	}

	encrypted, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	if err := s.messages.UpdateContent(ctx, messageID, encrypted); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	msg.Content = encrypted

	res, err := s.ToResponse(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, ChannelFor(conversationID), EventMessageUpdated, res); err != nil {
		s.log.Warn().
			Err(err).
			Int64("conversation_id", conversationID).
			Msg("realtime publish failed")
	}
	return res, nil
}

// Delete soft-deletes a message, leaving a tombstone in the history. Only
// the sender may delete; deleting twice is a no-op.
func (s *MessageService) Delete(ctx context.Context, conversationID, messageID, callerID int64) error {
	msg, err := s.requireSender(ctx, conversationID, messageID, callerID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := s.publisher.Publish(ctx, ChannelFor(conversationID), EventMessageDeleted, messageEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
	}); err != nil {
		s.log.Warn().
			Err(err).
			Int64("conversation_id", conversationID).
			Msg("realtime publish failed")
	}
	return nil
}

// List returns the newest messages in chronological order.
func (s *MessageService) List(ctx context.Context, conversationID, callerID int64, limit int) ([]*MessageResponse, error) {
	if err := s.requireParticipant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.maxPerConversation {
		limit = s.maxPerConversation
	}
	msgs, err := s.messages.ListForConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// The store returns newest-first; flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return s.toResponses(ctx, msgs)
}

// MarkAsRead records that the caller has seen everything up to now, which
// feeds the unread-only conversation filter.
func (s *MessageService) MarkAsRead(ctx context.Context, conversationID, callerID int64) error {
	if err := s.requireParticipant(ctx, conversationID, callerID); err != nil {
		return err
	}
	if err := s.conversations.MarkAsRead(ctx, conversationID, callerID); err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

// requireSender loads the message after the usual membership check and
// verifies the caller authored it.
func (s *MessageService) requireSender(ctx context.Context, conversationID, messageID, callerID int64) (*domain.Message, error) {
	if err := s.requireParticipant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil || msg.ConversationID != conversationID {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != callerID {
		return nil, domain.ErrForbidden
	}
	return msg, nil
}

func (s *MessageService) requireParticipant(ctx context.Context, conversationID, userID int64) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return domain.ErrNotFound
	}
	ok, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

// MessageResponse is the API shape of a message, with content decrypted.
type MessageResponse struct {
	ID             int64     `json:"id"`
	Content        string    `json:"content"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	CreatedAt      time.Time `json:"created_at"`
	FilePath       *string   `json:"file_path,omitempty"`
	FileType       *string   `json:"file_type,omitempty"`
	IsDeleted      bool      `json:"is_deleted"`
}

// ToResponse decrypts a stored message into its API shape. Undecryptable
// content is passed through raw rather than failing the whole listing; a
// deleted message keeps its row but loses content and attachment.
func (s *MessageService) ToResponse(ctx context.Context, m *domain.Message) (*MessageResponse, error) {
	res := &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		CreatedAt:      m.CreatedAt,
		IsDeleted:      m.IsDeleted,
	}
	if !m.IsDeleted {
		res.Content = m.Content
		if dec, err := s.encryptor.Decrypt(m.Content); err == nil {
			res.Content = dec
		}
		res.FilePath = m.FilePath
		res.FileType = m.FileType
	}
	if u, err := s.users.GetByID(ctx, m.SenderID); err == nil && u != nil {
		res.SenderUsername = u.Username
	}
	return res, nil
}

func (s *MessageService) toResponses(ctx context.Context, msgs []*domain.Message) ([]*MessageResponse, error) {
	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		dto, err := s.ToResponse(ctx, m)
		if err != nil {
			return nil, err
		}
		res = append(res, dto)
	}
	return res, nil
}
