package service

import (
	"context"
	"sync"
	"time"

	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/push"
)

type mockUserRepo struct {
	findByIDFunc         func(ctx context.Context, id string) (*model.User, error)
	findByEmailFunc      func(ctx context.Context, email string) (*model.User, error)
	findByIDsFunc        func(ctx context.Context, ids []string) ([]model.User, error)
	createFunc           func(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	updateStatusFunc     func(ctx context.Context, id string, status model.UserStatus) error
	touchActivityFunc    func(ctx context.Context, id string) error
	markStaleOfflineFunc func(ctx context.Context, threshold time.Time, onlineIDs []string) (int64, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFunc != nil {
		return m.findByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if m.findByIDsFunc != nil {
		return m.findByIDsFunc(ctx, ids)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateStatus(ctx context.Context, id string, status model.UserStatus) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *mockUserRepo) TouchActivity(ctx context.Context, id string) error {
	if m.touchActivityFunc != nil {
		return m.touchActivityFunc(ctx, id)
	}
	return nil
}

func (m *mockUserRepo) MarkStaleOffline(ctx context.Context, threshold time.Time, onlineIDs []string) (int64, error) {
	if m.markStaleOfflineFunc != nil {
		return m.markStaleOfflineFunc(ctx, threshold, onlineIDs)
	}
	return 0, nil
}

type mockConversationRepo struct {
	findByIDFunc          func(ctx context.Context, id string) (*model.Conversation, error)
	findByPairKeyFunc     func(ctx context.Context, pairKey string) (*model.Conversation, error)
	findByUserIDFunc      func(ctx context.Context, userID string) ([]model.Conversation, error)
	idsByUserIDFunc       func(ctx context.Context, userID string) ([]string, error)
	createFunc            func(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	updateLastMessageFunc func(ctx context.Context, id, messageID string) error
}

func (m *mockConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockConversationRepo) FindByPairKey(ctx context.Context, pairKey string) (*model.Conversation, error) {
	if m.findByPairKeyFunc != nil {
		return m.findByPairKeyFunc(ctx, pairKey)
	}
	return nil, nil
}

func (m *mockConversationRepo) FindByUserID(ctx context.Context, userID string) ([]model.Conversation, error) {
	if m.findByUserIDFunc != nil {
		return m.findByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockConversationRepo) IDsByUserID(ctx context.Context, userID string) ([]string, error) {
	if m.idsByUserIDFunc != nil {
		return m.idsByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockConversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockConversationRepo) UpdateLastMessage(ctx context.Context, id, messageID string) error {
	if m.updateLastMessageFunc != nil {
		return m.updateLastMessageFunc(ctx, id, messageID)
	}
	return nil
}

type mockMessageRepo struct {
	findByIDFunc             func(ctx context.Context, id string) (*model.Message, error)
	findByConversationIDFunc func(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	countFunc                func(ctx context.Context, conversationID string) (int, error)
	createFunc               func(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	markReadFunc             func(ctx context.Context, conversationID, readerID string) (int64, error)
	tombstoneFunc            func(ctx context.Context, id string) error
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockMessageRepo) FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	if m.findByConversationIDFunc != nil {
		return m.findByConversationIDFunc(ctx, conversationID, limit, offset)
	}
	return nil, nil
}

func (m *mockMessageRepo) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, conversationID)
	}
	return 0, nil
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockMessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, conversationID, readerID)
	}
	return 0, nil
}

func (m *mockMessageRepo) Tombstone(ctx context.Context, id string) error {
	if m.tombstoneFunc != nil {
		return m.tombstoneFunc(ctx, id)
	}
	return nil
}

type mockDeviceRepo struct {
	upsertFunc          func(ctx context.Context, params model.UpsertDeviceParams) (*model.Device, error)
	deleteByTokenFunc   func(ctx context.Context, userID, pushToken string) error
	tokensByUserIDsFunc func(ctx context.Context, userIDs []string) ([]string, error)
	deleteStaleFunc     func(ctx context.Context, threshold time.Time) (int64, error)
}

func (m *mockDeviceRepo) Upsert(ctx context.Context, params model.UpsertDeviceParams) (*model.Device, error) {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockDeviceRepo) DeleteByToken(ctx context.Context, userID, pushToken string) error {
	if m.deleteByTokenFunc != nil {
		return m.deleteByTokenFunc(ctx, userID, pushToken)
	}
	return nil
}

func (m *mockDeviceRepo) TokensByUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	if m.tokensByUserIDsFunc != nil {
		return m.tokensByUserIDsFunc(ctx, userIDs)
	}
	return nil, nil
}

func (m *mockDeviceRepo) DeleteStale(ctx context.Context, threshold time.Time) (int64, error) {
	if m.deleteStaleFunc != nil {
		return m.deleteStaleFunc(ctx, threshold)
	}
	return 0, nil
}

type broadcastCall struct {
	Room          string
	EventType     string
	Payload       any
	ExcludeUserID string
}

// recordingBroadcaster captures every broadcast in order so tests can
// assert sequencing against other recorded side effects.
type recordingBroadcaster struct {
	mu        sync.Mutex
	roomCalls []broadcastCall
	allCalls  []broadcastCall
	err       error
}

func (b *recordingBroadcaster) BroadcastRoom(ctx context.Context, conversationID, eventType string, payload any, excludeUserID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roomCalls = append(b.roomCalls, broadcastCall{conversationID, eventType, payload, excludeUserID})
	return b.err
}

func (b *recordingBroadcaster) BroadcastAll(ctx context.Context, eventType string, payload any, excludeUserID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allCalls = append(b.allCalls, broadcastCall{"", eventType, payload, excludeUserID})
	return b.err
}

func (b *recordingBroadcaster) RoomCalls() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.roomCalls...)
}

func (b *recordingBroadcaster) AllCalls() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.allCalls...)
}

type mockNotifier struct {
	notifyFunc func(ctx context.Context, tokens []string, n push.Notification) (int, int, error)
}

func (m *mockNotifier) Notify(ctx context.Context, tokens []string, n push.Notification) (int, int, error) {
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, tokens, n)
	}
	return len(tokens), 0, nil
}
