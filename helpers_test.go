package descriptor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infracollect/bundle-descriptor/store"
)

// zipBytes builds an in-memory zip archive from name -> content.
func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type findCall struct {
	entityType string
	filters    []store.Filter
	fields     []string
}

// fakeStore serves attachments from memory and fails the first
// failures downloads.
type fakeStore struct {
	mu          sync.Mutex
	attachments map[int][]byte
	failures    int
	downloads   int
	record      store.Record
	findErr     error
	finds       []findCall
}

func (s *fakeStore) DownloadAttachment(_ context.Context, id int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset by peer")
	}
	data, ok := s.attachments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (s *fakeStore) FindOne(_ context.Context, entityType string, filters []store.Filter, fields []string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds = append(s.finds, findCall{entityType: entityType, filters: filters, fields: fields})
	return s.record, s.findErr
}

func (s *fakeStore) downloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}
