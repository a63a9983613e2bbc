package mocks

import (
	"context"

	"github.com/ganot/dayloop/internal/sheets"
	"github.com/stretchr/testify/mock"
)

// RecordAPI is a mock for sync.RecordAPI.
type RecordAPI struct {
	mock.Mock
}

func (m *RecordAPI) CreateTable(ctx context.Context, name string) (*sheets.Table, error) {
	args := m.Called(ctx, name)
	if table, ok := args.Get(0).(*sheets.Table); ok {
		return table, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordAPI) GetTable(ctx context.Context, id string) (*sheets.Table, error) {
	args := m.Called(ctx, id)
	if table, ok := args.Get(0).(*sheets.Table); ok {
		return table, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordAPI) FindTableByName(ctx context.Context, name string) ([]sheets.Table, error) {
	args := m.Called(ctx, name)
	if tables, ok := args.Get(0).([]sheets.Table); ok {
		return tables, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordAPI) AddRange(ctx context.Context, tableID, rangeName string) error {
	args := m.Called(ctx, tableID, rangeName)
	return args.Error(0)
}

func (m *RecordAPI) GetValues(ctx context.Context, tableID, rangeName string) ([][]string, error) {
	args := m.Called(ctx, tableID, rangeName)
	if rows, ok := args.Get(0).([][]string); ok {
		return rows, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordAPI) SetValues(ctx context.Context, tableID, rangeName string, rows [][]string) error {
	args := m.Called(ctx, tableID, rangeName, rows)
	return args.Error(0)
}

func (m *RecordAPI) ClearValues(ctx context.Context, tableID, rangeName string) error {
	args := m.Called(ctx, tableID, rangeName)
	return args.Error(0)
}

func (m *RecordAPI) BatchGet(ctx context.Context, tableID string, rangeNames []string) ([]sheets.ValueRange, error) {
	args := m.Called(ctx, tableID, rangeNames)
	if ranges, ok := args.Get(0).([]sheets.ValueRange); ok {
		return ranges, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordAPI) BatchSet(ctx context.Context, tableID string, data []sheets.ValueRange) error {
	args := m.Called(ctx, tableID, data)
	return args.Error(0)
}
