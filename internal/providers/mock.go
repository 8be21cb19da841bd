package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockService is a Service for tests. Each call returns the result of the
// matching func, or a canned response when the func is nil.
type MockService struct {
	Latency time.Duration

	ExtractFunc         func(ctx context.Context, doc Upload, opts ExtractOptions) (*ExtractResult, error)
	ExtractAllPagesFunc func(ctx context.Context, doc Upload, language string) (*PagesResult, error)
	DetectFunc          func(ctx context.Context, doc Upload, page int) (*DetectResult, error)
	VerifyFunc          func(ctx context.Context, doc Upload, submitted map[string]string) (*VerifyResult, error)
	HealthFunc          func(ctx context.Context) (*HealthStatus, error)

	requestCount atomic.Int64

	mu    sync.Mutex
	calls []string
}

// NewMockService creates a mock with canned responses.
func NewMockService() *MockService {
	return &MockService{}
}

// RequestCount returns the number of calls made.
func (m *MockService) RequestCount() int64 {
	return m.requestCount.Load()
}

// Calls returns "op:file" entries in call order.
func (m *MockService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockService) record(ctx context.Context, op string, doc Upload) error {
	m.requestCount.Add(1)
	name := ""
	if doc != nil {
		name = doc.FileName()
	}
	m.mu.Lock()
	m.calls = append(m.calls, op+":"+name)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	return nil
}

// Extract implements Service.
func (m *MockService) Extract(ctx context.Context, doc Upload, opts ExtractOptions) (*ExtractResult, error) {
	if err := m.record(ctx, "extract", doc); err != nil {
		return nil, err
	}
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, doc, opts)
	}
	value, conf := "mock", 0.9
	return &ExtractResult{
		MappedFields: map[string]MappedField{"name": {Value: &value, Confidence: &conf}},
	}, nil
}

// ExtractAllPages implements Service.
func (m *MockService) ExtractAllPages(ctx context.Context, doc Upload, language string) (*PagesResult, error) {
	if err := m.record(ctx, "extract_pages", doc); err != nil {
		return nil, err
	}
	if m.ExtractAllPagesFunc != nil {
		return m.ExtractAllPagesFunc(ctx, doc, language)
	}
	value, conf := "mock", 0.9
	return &PagesResult{
		TotalPages: 1,
		Pages: []PageResult{{
			PageNumber:   1,
			MappedFields: map[string]MappedField{"name": {Value: &value, Confidence: &conf}},
		}},
	}, nil
}

// Detect implements Service.
func (m *MockService) Detect(ctx context.Context, doc Upload, page int) (*DetectResult, error) {
	if err := m.record(ctx, "detect", doc); err != nil {
		return nil, err
	}
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, doc, page)
	}
	return &DetectResult{
		Detections:        []Detection{{Text: "mock", Confidence: 0.9}},
		TotalDetections:   1,
		ConfidenceOverlay: "bW9jaw==",
	}, nil
}

// Verify implements Service.
func (m *MockService) Verify(ctx context.Context, doc Upload, submitted map[string]string) (*VerifyResult, error) {
	if err := m.record(ctx, "verify", doc); err != nil {
		return nil, err
	}
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, doc, submitted)
	}
	out := &VerifyResult{Fields: make(map[string]VerifiedField, len(submitted))}
	for k, v := range submitted {
		v := v
		score := 1.0
		out.Fields[k] = VerifiedField{Submitted: &v, Extracted: &v, Status: "MATCH", SimilarityScore: &score}
	}
	return out, nil
}

// Health implements Service.
func (m *MockService) Health(ctx context.Context) (*HealthStatus, error) {
	if err := m.record(ctx, "health", nil); err != nil {
		return nil, err
	}
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return &HealthStatus{Status: "healthy"}, nil
}

// FailWith returns an error func result shaped like a service failure.
func FailWith(op string, status int, message string) error {
	if status == 0 {
		return &TransportError{Op: op, Err: fmt.Errorf("%s", message)}
	}
	return &TransportError{Op: op, StatusCode: status, Message: message}
}

var _ Service = (*MockService)(nil)
