package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/leakscan/internal/model"
)

// MockWriter is a ResultWriter that records calls for tests.
type MockWriter struct {
	WriteFunc      func(ctx context.Context, result *model.Result) (string, error)
	LastResult     *model.Result
	WriteCalls     []WriteCall
	WriteCallCount int
	mu             sync.Mutex
}

// WriteCall represents a single call to Write.
type WriteCall struct {
	Error  error
	Result *model.Result
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		WriteCalls: make([]WriteCall, 0),
	}
}

// Write records the call and delegates to WriteFunc when set.
func (m *MockWriter) Write(ctx context.Context, result *model.Result) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCallCount++
	m.LastResult = result

	id := "mock-spreadsheet"
	var err error
	if m.WriteFunc != nil {
		id, err = m.WriteFunc(ctx, result)
	}

	m.WriteCalls = append(m.WriteCalls, WriteCall{Result: result, Error: err})
	return id, err
}

// GetWriteCalls returns a copy of all write calls.
func (m *MockWriter) GetWriteCalls() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]WriteCall, len(m.WriteCalls))
	copy(calls, m.WriteCalls)
	return calls
}

// SetWriteError configures the mock to fail every Write call with err.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, *model.Result) (string, error) {
		return "", err
	}
}
