package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/atlas-iam/gatekeeper/audit"
)

// MockAuditService is a mock implementation of audit.Service
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) LogEvent(ctx context.Context, event audit.AuthEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditService) QueryEvents(ctx context.Context, from, to time.Time, userID, action string) ([]audit.AuthEvent, error) {
	args := m.Called(ctx, from, to, userID, action)
	return args.Get(0).([]audit.AuthEvent), args.Error(1)
}
