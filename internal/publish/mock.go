package publish

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a test double for Client.
type MockClient struct {
	UploadErr error
	ListErr   error

	mu sync.Mutex
	// UploadedFiles maps bucket/key to the local path uploaded.
	UploadedFiles map[string]string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{UploadedFiles: make(map[string]string)}
}

func (m *MockClient) UploadFile(_ context.Context, bucket, key, localPath string) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UploadedFiles[bucket+"/"+key] = localPath
	return nil
}

func (m *MockClient) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for full := range m.UploadedFiles {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
