package server

import (
	"context"

	"github.com/ratewriter/ratewriter/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockDatabase struct {
	mock.Mock
}

func (m *mockDatabase) UpsertSiteConfig(ctx context.Context, site types.SiteConfig) error {
	args := m.Called(ctx, site)
	return args.Error(0)
}

func (m *mockDatabase) GetSiteConfig(ctx context.Context, siteID string) (types.SiteConfig, error) {
	args := m.Called(ctx, siteID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.SiteConfig), args.Error(1)
	}
	return types.SiteConfig{}, nil
}

func (m *mockDatabase) ListSiteIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, nil
}

func (m *mockDatabase) DeleteSiteConfig(ctx context.Context, siteID string) error {
	args := m.Called(ctx, siteID)
	return args.Error(0)
}

func (m *mockDatabase) RecordPushResult(ctx context.Context, siteID string, res types.PushResult) error {
	args := m.Called(ctx, siteID, res)
	return args.Error(0)
}

func (m *mockDatabase) GetLastPushResult(ctx context.Context, siteID string) (types.PushResult, error) {
	args := m.Called(ctx, siteID)
	if len(args) > 0 {
		return args.Get(0).(types.PushResult), args.Error(1)
	}
	return types.PushResult{}, nil
}

func (m *mockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
