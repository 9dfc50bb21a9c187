package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lumeochat/messenger-go/internal/config"
	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/push"
	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/util"
)

// MessageService owns the delivery pipeline. Send is ordered: persist
// first, then the best-effort conversation preview update, then the
// broadcast. A message is never announced before it is durable.
type MessageService struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	users         repository.UserRepository
	devices       repository.DeviceRepository
	broadcaster   Broadcaster
	presence      *PresenceService
	notifier      push.Notifier
}

func NewMessageService(
	messages repository.MessageRepository,
	conversations repository.ConversationRepository,
	users repository.UserRepository,
	devices repository.DeviceRepository,
	broadcaster Broadcaster,
	presence *PresenceService,
	notifier push.Notifier,
) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		users:         users,
		devices:       devices,
		broadcaster:   broadcaster,
		presence:      presence,
		notifier:      notifier,
	}
}

type SendParams struct {
	ConversationID string            `json:"conversationId"`
	Content        string            `json:"content"`
	Type           model.MessageType `json:"type"`
}

// Send validates, persists, and fans out a message. The preview update on
// the conversation may fail without failing the send; the broadcast runs
// only after the message is in the store.
func (s *MessageService) Send(ctx context.Context, senderID string, params SendParams) (*model.DeliveredMessage, error) {
	if util.IsBlank(params.Content) {
		return nil, apperrors.MissingRequired("content")
	}
	if params.Type == "" {
		params.Type = model.MessageTypeText
	}

	conv, err := s.conversations.FindByID(ctx, params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, apperrors.Forbidden("Not a participant of this conversation")
	}

	persistCtx, cancel := context.WithTimeout(ctx, config.PersistTimeout)
	defer cancel()
	msg, err := s.messages.Create(persistCtx, model.CreateMessageParams{
		ConversationID: params.ConversationID,
		SenderID:       senderID,
		Content:        params.Content,
		Type:           params.Type,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	// Preview update is best-effort: the message is already durable, and
	// readers see it through the room broadcast regardless.
	if err := s.conversations.UpdateLastMessage(ctx, conv.ID, msg.ID); err != nil {
		log.Error().Err(err).
			Str("conversationId", conv.ID).
			Str("messageId", msg.ID).
			Msg("failed to update conversation preview")
	}

	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	delivered := &model.DeliveredMessage{Message: *msg, Sender: sender.Public()}

	if err := s.broadcaster.BroadcastRoom(ctx, conv.ID, eventMessageReceive, delivered, ""); err != nil {
		log.Error().Err(err).
			Str("conversationId", conv.ID).
			Str("messageId", msg.ID).
			Msg("failed to broadcast message")
	}

	go s.notifyOffline(conv, sender, msg)

	return delivered, nil
}

// notifyOffline pushes to participants with no live connection. Runs
// detached from the request so a slow provider never delays delivery.
func (s *MessageService) notifyOffline(conv *model.Conversation, sender *model.User, msg *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), config.PushTimeout)
	defer cancel()

	var offline []string
	for _, id := range conv.ParticipantIDs {
		if id == sender.ID || s.presence.IsOnline(id) {
			continue
		}
		offline = append(offline, id)
	}
	if len(offline) == 0 {
		return
	}

	tokens, err := s.devices.TokensByUserIDs(ctx, offline)
	if err != nil {
		log.Error().Err(err).Msg("failed to load push tokens")
		return
	}

	_, failures, err := s.notifier.Notify(ctx, tokens, push.Notification{
		Title: sender.Username,
		Body:  previewText(msg),
		Data: map[string]string{
			"conversationId": conv.ID,
			"messageId":      msg.ID,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("push dispatch failed")
		return
	}
	if failures > 0 {
		log.Warn().Int("failures", failures).Str("messageId", msg.ID).Msg("some push deliveries failed")
	}
}

func previewText(msg *model.Message) string {
	switch msg.Type {
	case model.MessageTypeImage:
		return "Sent an image"
	case model.MessageTypeFile:
		return "Sent a file"
	default:
		if len(msg.Content) > 120 {
			return msg.Content[:120]
		}
		return msg.Content
	}
}

// History returns a page of messages, newest first. Membership is checked
// before any row is read.
func (s *MessageService) History(ctx context.Context, userID, conversationID string, limit, offset int) ([]model.Message, int, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.HasParticipant(userID) {
		return nil, 0, apperrors.Forbidden("Not a participant of this conversation")
	}

	msgs, err := s.messages.FindByConversationID(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.messages.CountByConversationID(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// MarkRead marks every unread message in the conversation as read by
// userID. Idempotent: a second call is a no-op and still succeeds.
func (s *MessageService) MarkRead(ctx context.Context, userID, conversationID string) (int64, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(userID) {
		return 0, apperrors.Forbidden("Not a participant of this conversation")
	}
	return s.messages.MarkRead(ctx, conversationID, userID)
}

// Delete tombstones a message. Only the sender may delete; the row stays
// so history keeps its shape.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return apperrors.Forbidden("Only the sender can delete a message")
	}
	if msg.Deleted {
		return nil
	}
	if err := s.messages.Tombstone(ctx, messageID); err != nil {
		return apperrors.Database(err)
	}

	payload := map[string]any{"messageId": messageID, "conversationId": msg.ConversationID, "deleted": true}
	if err := s.broadcaster.BroadcastRoom(ctx, msg.ConversationID, eventMessageReceive, payload, ""); err != nil {
		log.Error().Err(err).Str("messageId", messageID).Msg("failed to broadcast deletion")
	}
	return nil
}

type typingPayload struct {
	ConversationID string           `json:"conversationId"`
	User           model.PublicUser `json:"user"`
	IsTyping       bool             `json:"isTyping"`
}

// Typing relays a typing indicator to the other room members. Nothing is
// persisted; a dropped indicator is not an error.
func (s *MessageService) Typing(ctx context.Context, user *model.User, conversationID string, isTyping bool) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(user.ID) {
		return apperrors.Forbidden("Not a participant of this conversation")
	}

	return s.broadcaster.BroadcastRoom(ctx, conversationID, eventTyping, typingPayload{
		ConversationID: conversationID,
		User:           user.Public(),
		IsTyping:       isTyping,
	}, user.ID)
}
