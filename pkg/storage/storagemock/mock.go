package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ratewriter/ratewriter/pkg/storage"
	"github.com/ratewriter/ratewriter/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) UpsertSiteConfig(ctx context.Context, site types.SiteConfig) error {
	args := m.Called(ctx, site)
	return args.Error(0)
}

func (m *MockDatabase) GetSiteConfig(ctx context.Context, siteID string) (types.SiteConfig, error) {
	args := m.Called(ctx, siteID)
	if len(args) > 0 {
		return args.Get(0).(types.SiteConfig), args.Error(1)
	}
	return types.SiteConfig{}, nil
}

func (m *MockDatabase) ListSiteIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) DeleteSiteConfig(ctx context.Context, siteID string) error {
	args := m.Called(ctx, siteID)
	return args.Error(0)
}

func (m *MockDatabase) RecordPushResult(ctx context.Context, siteID string, res types.PushResult) error {
	args := m.Called(ctx, siteID, res)
	return args.Error(0)
}

func (m *MockDatabase) GetLastPushResult(ctx context.Context, siteID string) (types.PushResult, error) {
	args := m.Called(ctx, siteID)
	if len(args) > 0 {
		return args.Get(0).(types.PushResult), args.Error(1)
	}
	return types.PushResult{}, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
