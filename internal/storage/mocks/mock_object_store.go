package mocks

import (
	"context"
	"io"

	"towerdocs/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Store(ctx context.Context, r io.Reader, meta storage.Metadata) (*storage.Object, error) {
	args := m.Called(ctx, r, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Object), args.Error(1)
}

func (m *MockObjectStore) RetrieveURL(ctx context.Context, location string) (string, error) {
	args := m.Called(ctx, location)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Delete(ctx context.Context, location string) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}
