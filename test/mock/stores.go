package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/atlas-iam/gatekeeper/model"
)

// MockUserStore is a mock implementation of store.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Find(ctx context.Context, filters map[string]any) (*model.UserRecord, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserRecord), args.Error(1)
}

// MockAPIKeyStore is a mock implementation of store.APIKeyStore
type MockAPIKeyStore struct {
	mock.Mock
}

func (m *MockAPIKeyStore) GetKey(ctx context.Context, userID int64, deviceID string) (*model.APIKeyRecord, error) {
	args := m.Called(ctx, userID, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKeyRecord), args.Error(1)
}

// MockSessionStore is a mock implementation of store.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context, key string) (model.SessionData, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.SessionData), args.Error(1)
}

func (m *MockSessionStore) Save(ctx context.Context, key string, payload model.SessionData, ttl time.Duration) error {
	args := m.Called(ctx, key, payload, ttl)
	return args.Error(0)
}

func (m *MockSessionStore) Forget(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
