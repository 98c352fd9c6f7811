package mocks

import (
	"context"

	"towerdocs/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockAuthService struct {
	mock.Mock
}

var _ service.AuthService = (*MockAuthService)(nil)

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*service.Token, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Token), args.Error(1)
}

func (m *MockAuthService) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}
