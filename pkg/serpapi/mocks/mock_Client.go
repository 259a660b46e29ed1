// Package mocks provides test doubles for the serpapi client.
package mocks

import (
	"context"

	serpapi "github.com/sells-group/broker-verify/pkg/serpapi"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, params
func (_m *MockClient) Search(ctx context.Context, params serpapi.Params) (*serpapi.Response, error) {
	ret := _m.Called(ctx, params)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *serpapi.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, serpapi.Params) (*serpapi.Response, error)); ok {
		return rf(ctx, params)
	}
	if rf, ok := ret.Get(0).(func(context.Context, serpapi.Params) *serpapi.Response); ok {
		r0 = rf(ctx, params)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*serpapi.Response)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, serpapi.Params) error); ok {
		r1 = rf(ctx, params)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
