package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptyard/taskd/internal/crypto"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/store"
)

type fakeProbeStore struct {
	logs []*store.ApiDebugLog
}

func (f *fakeProbeStore) CreateProbe(context.Context, *store.ApiDebugConfig) error { return nil }
func (f *fakeProbeStore) GetProbe(context.Context, uuid.UUID) (*store.ApiDebugConfig, error) {
	return nil, store.ErrNotFound
}
func (f *fakeProbeStore) ListProbes(context.Context) ([]*store.ApiDebugConfig, error) {
	return nil, nil
}
func (f *fakeProbeStore) UpdateProbe(context.Context, *store.ApiDebugConfig) error { return nil }
func (f *fakeProbeStore) DeleteProbe(context.Context, uuid.UUID) error              { return nil }

func (f *fakeProbeStore) CreateProbeLog(_ context.Context, l *store.ApiDebugLog) error {
	l.ID = store.GenNewID()
	f.logs = append(f.logs, l)
	return nil
}
func (f *fakeProbeStore) ListProbeLogs(context.Context, uuid.UUID, int) ([]*store.ApiDebugLog, error) {
	return nil, nil
}

func (f *fakeProbeStore) last() *store.ApiDebugLog {
	if len(f.logs) == 0 {
		return nil
	}
	return f.logs[len(f.logs)-1]
}

func newTestRunner() (*Runner, *fakeProbeStore) {
	fps := &fakeProbeStore{}
	stores := &store.Stores{Probes: fps}
	return New(stores, livelog.NewHub(), notifier.SlogNotifier{}, ""), fps
}

func TestRunSuccessRecordsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "bar", req.Header.Get("X-Foo"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	runner, fps := newTestRunner()
	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "health",
		Method:    "GET",
		URL:       srv.URL,
		Headers:   map[string]string{"X-Foo": "bar"},
	}

	require.NoError(t, runner.Run(context.Background(), cfg))
	log := fps.last()
	require.NotNil(t, log)
	assert.Equal(t, "success", log.Status)
	assert.Equal(t, http.StatusOK, log.ResponseStatus)
	assert.Contains(t, log.ResponseBody, "ok")
}

func TestRunServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	runner, fps := newTestRunner()
	cfg := &store.ApiDebugConfig{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "broken", Method: "GET", URL: srv.URL}

	require.NoError(t, runner.Run(context.Background(), cfg))
	log := fps.last()
	require.NotNil(t, log)
	assert.Equal(t, "error", log.Status)
	assert.Equal(t, http.StatusInternalServerError, log.ResponseStatus)
}

func TestRunPostSetsContentLength(t *testing.T) {
	var gotLen string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotLen = req.Header.Get("Content-Length")
		buf := make([]byte, req.ContentLength)
		req.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	runner, _ := newTestRunner()
	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "post",
		Method:    "POST",
		URL:       srv.URL,
		Payload:   `{"hello":"world"}`,
	}
	require.NoError(t, runner.Run(context.Background(), cfg))
	assert.Equal(t, "17", gotLen)
	assert.Equal(t, `{"hello":"world"}`, gotBody)
}

func TestRunPostKeepsExplicitContentLength(t *testing.T) {
	var gotLen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotLen = req.Header.Get("Content-Length")
		io.Copy(io.Discard, req.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	runner, _ := newTestRunner()
	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "post-explicit",
		Method:    "POST",
		URL:       srv.URL,
		Payload:   `{"hello":"world"}`,
		Headers:   map[string]string{"Content-Length": "999"},
	}
	require.NoError(t, runner.Run(context.Background(), cfg))
	assert.Equal(t, "999", gotLen)
}

func TestRunPostSentinelContentLengthIsAutoComputed(t *testing.T) {
	var gotLen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotLen = req.Header.Get("Content-Length")
		io.Copy(io.Discard, req.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	runner, _ := newTestRunner()
	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "post-sentinel",
		Method:    "POST",
		URL:       srv.URL,
		Payload:   `{"hello":"world"}`,
		Headers:   map[string]string{"Content-Length": "自动计算"},
	}
	require.NoError(t, runner.Run(context.Background(), cfg))
	assert.Equal(t, "17", gotLen)
}

func TestRunExpandsVariables(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	runner, _ := newTestRunner()
	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "expand",
		Method:    "GET",
		URL:       srv.URL + "?ts=[timestmp.10]",
	}
	require.NoError(t, runner.Run(context.Background(), cfg))
	assert.NotContains(t, gotQuery, "[timestmp")
}

func TestRunDecryptsEncryptedHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	const key = "01234567890123456789012345678901"
	ciphertext, err := crypto.Encrypt("Bearer secret-token", key)
	require.NoError(t, err)

	fps := &fakeProbeStore{}
	stores := &store.Stores{Probes: fps}
	runner := New(stores, livelog.NewHub(), notifier.SlogNotifier{}, key)

	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "auth",
		Method:    "GET",
		URL:       srv.URL,
		Headers:   map[string]string{"Authorization": ciphertext},
	}
	require.NoError(t, runner.Run(context.Background(), cfg))
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestRunConnectionRefusedIsRecordedAsError(t *testing.T) {
	runner, fps := newTestRunner()
	cfg := &store.ApiDebugConfig{
		BaseModel: store.BaseModel{ID: store.GenNewID()},
		Name:      "down",
		Method:    "GET",
		URL:       "http://127.0.0.1:1", // reserved, nothing listens here
	}
	require.NoError(t, runner.Run(context.Background(), cfg))
	log := fps.last()
	require.NotNil(t, log)
	assert.Equal(t, "error", log.Status)
}
