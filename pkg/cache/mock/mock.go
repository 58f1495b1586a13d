package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fundwizard/pkg/cache"
)

// Layer is a cache.Layer whose behaviour is set through function hooks. Calls
// are counted so tests can assert that a code path did or did not touch the
// backing store.
type Layer struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	NameFunc   func() string
	CloseFunc  func() error

	getCalls    int64
	setCalls    int64
	deleteCalls int64
	closeCalls  int64
}

// Get calls GetFunc, or reports a miss.
func (m *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, cache.ErrKeyNotFound
}

// Set calls SetFunc, or succeeds.
func (m *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

// Delete calls DeleteFunc, or succeeds.
func (m *Layer) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

// Name calls NameFunc, or returns "mock".
func (m *Layer) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

// Close calls CloseFunc, or succeeds.
func (m *Layer) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Layer) GetCalls() int    { return int(atomic.LoadInt64(&m.getCalls)) }
func (m *Layer) SetCalls() int    { return int(atomic.LoadInt64(&m.setCalls)) }
func (m *Layer) DeleteCalls() int { return int(atomic.LoadInt64(&m.deleteCalls)) }
func (m *Layer) CloseCalls() int  { return int(atomic.LoadInt64(&m.closeCalls)) }

// NewLayer returns a layer that misses on every Get and accepts every write.
func NewLayer(name string) *Layer {
	return &Layer{
		NameFunc: func() string { return name },
	}
}

// NewFailingLayer returns a layer whose every operation fails with err.
func NewFailingLayer(name string, err error) *Layer {
	return &Layer{
		NameFunc:   func() string { return name },
		GetFunc:    func(context.Context, string) ([]byte, error) { return nil, err },
		SetFunc:    func(context.Context, string, []byte, time.Duration) error { return err },
		DeleteFunc: func(context.Context, string) error { return err },
	}
}

// NewMapLayer returns a layer backed by a plain map, ignoring ttl. Useful
// where a test wants real storage plus call counting.
func NewMapLayer(name string) *Layer {
	var mu sync.Mutex
	data := make(map[string][]byte)

	return &Layer{
		NameFunc: func() string { return name },
		GetFunc: func(_ context.Context, key string) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			v, ok := data[key]
			if !ok {
				return nil, cache.ErrKeyNotFound
			}
			return append([]byte(nil), v...), nil
		},
		SetFunc: func(_ context.Context, key string, value []byte, _ time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			data[key] = append([]byte(nil), value...)
			return nil
		},
		DeleteFunc: func(_ context.Context, key string) error {
			mu.Lock()
			defer mu.Unlock()
			delete(data, key)
			return nil
		},
	}
}
