// Package mocks provides test doubles for the corpus interfaces.
package mocks

import (
	"context"

	corpus "github.com/sells-group/bioscope/internal/corpus"
	model "github.com/sells-group/bioscope/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockReader is a mock type for the Reader interface.
type MockReader struct {
	mock.Mock
}

// GetExact provides a mock function with given fields: ctx, riskType, threatLevel
func (_m *MockReader) GetExact(ctx context.Context, riskType string, threatLevel string) (*model.MitigationDocument, error) {
	ret := _m.Called(ctx, riskType, threatLevel)

	if len(ret) == 0 {
		panic("no return value specified for GetExact")
	}

	var r0 *model.MitigationDocument
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*model.MitigationDocument, error)); ok {
		return rf(ctx, riskType, threatLevel)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *model.MitigationDocument); ok {
		r0 = rf(ctx, riskType, threatLevel)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.MitigationDocument)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, riskType, threatLevel)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Nearest provides a mock function with given fields: ctx, vec, k
func (_m *MockReader) Nearest(ctx context.Context, vec []float32, k int) ([]corpus.Neighbor, error) {
	ret := _m.Called(ctx, vec, k)

	if len(ret) == 0 {
		panic("no return value specified for Nearest")
	}

	var r0 []corpus.Neighbor
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []float32, int) ([]corpus.Neighbor, error)); ok {
		return rf(ctx, vec, k)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []float32, int) []corpus.Neighbor); ok {
		r0 = rf(ctx, vec, k)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]corpus.Neighbor)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []float32, int) error); ok {
		r1 = rf(ctx, vec, k)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockReader creates a new instance of MockReader.
func NewMockReader(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockReader {
	mock := &MockReader{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
