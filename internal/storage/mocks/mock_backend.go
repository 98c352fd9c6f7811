package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Kind() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, r, size, contentType)
	if f, ok := args.Get(0).(func(context.Context, string, io.Reader, int64, string) error); ok {
		return f(ctx, key, r, size, contentType)
	}
	return args.Error(0)
}

func (m *MockBackend) URL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
