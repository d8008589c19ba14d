package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/store"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, address string) (*geocode.Location, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Location), args.Error(1)
}

// --- LayerFetcher Mock ---

type mockLayerFetcher struct {
	mock.Mock
}

func (m *mockLayerFetcher) FetchLayer(ctx context.Context, req model.LayerRequest, bbox model.BoundingBox) *model.LayerArtifact {
	args := m.Called(ctx, req, bbox)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.LayerArtifact)
}

// --- Table stub ---

type staticTable map[string][]model.LayerRequest

func (t staticTable) Lookup(_, county string) []model.LayerRequest {
	return t[county]
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveRun(ctx context.Context, run *model.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunRecord), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunRecord, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.RunRecord), args.Error(1)
}

func (m *mockStore) GetGeocode(ctx context.Context, key string) (*geocode.Location, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*geocode.Location), args.Bool(1), args.Error(2)
}

func (m *mockStore) PutGeocode(ctx context.Context, key, address string, loc *geocode.Location) error {
	args := m.Called(ctx, key, address, loc)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
