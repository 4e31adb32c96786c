package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/oroio/internal/models"
	"github.com/atinyakov/oroio/internal/service"
)

// fakeKeyService implements KeyService for testing.
type fakeKeyService struct {
	AddFunc      func(ctx context.Context, key string) (int, error)
	RemoveAtFunc func(ctx context.Context, idx int) (int, error)
	SelectAtFunc func(ctx context.Context, idx int) error
	RefreshFunc  func(ctx context.Context) error
	StatusFunc   func(ctx context.Context) service.Status
	HistoryFunc  func(ctx context.Context, idx, limit int) ([]models.HistoryRecord, error)
}

func (f *fakeKeyService) Add(ctx context.Context, key string) (int, error) {
	return f.AddFunc(ctx, key)
}
func (f *fakeKeyService) RemoveAt(ctx context.Context, idx int) (int, error) {
	return f.RemoveAtFunc(ctx, idx)
}
func (f *fakeKeyService) SelectAt(ctx context.Context, idx int) error {
	return f.SelectAtFunc(ctx, idx)
}
func (f *fakeKeyService) Refresh(ctx context.Context) error { return f.RefreshFunc(ctx) }
func (f *fakeKeyService) Status(ctx context.Context) service.Status {
	return f.StatusFunc(ctx)
}
func (f *fakeKeyService) History(ctx context.Context, idx, limit int) ([]models.HistoryRecord, error) {
	return f.HistoryFunc(ctx, idx, limit)
}

func newTestRouter(svc KeyService, dir string) http.Handler {
	return NewRouter(&KeysHandler{KeyService: svc}, &DataHandler{Dir: dir}, nil, "")
}

func localRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestKeysHandler_Add(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		addErr    error
		wantOK    bool
		wantSubst string
	}{
		{name: "success", body: `{"key":"fk-1"}`, wantOK: true, wantSubst: "3 keys"},
		{name: "empty key", body: `{"key":""}`, addErr: service.ErrEmptyKey, wantSubst: "Key is required"},
		{name: "malformed body", body: `not json`, addErr: service.ErrEmptyKey, wantSubst: "Key is required"},
		{name: "write failure", body: `{"key":"fk-1"}`, addErr: errors.New("disk full"), wantSubst: "disk full"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeKeyService{AddFunc: func(_ context.Context, key string) (int, error) {
				if tc.addErr != nil {
					return 0, tc.addErr
				}
				return 3, nil
			}}
			rec := httptest.NewRecorder()
			newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodPost, "/api/add", tc.body))

			resp := decodeResponse(t, rec)
			assert.Equal(t, tc.wantOK, resp.Success)
			if tc.wantOK {
				assert.Contains(t, resp.Message, tc.wantSubst)
			} else {
				assert.Contains(t, resp.Error, tc.wantSubst)
			}
		})
	}
}

func TestKeysHandler_RemoveAndUseIndex(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIdx int
		wantErr string
	}{
		{name: "number", body: `{"index":2}`, wantIdx: 2},
		{name: "numeric string", body: `{"index":"3"}`, wantIdx: 3},
		{name: "missing", body: `{}`, wantErr: "Index is required"},
		{name: "zero", body: `{"index":0}`, wantErr: "Index is required"},
		{name: "empty string", body: `{"index":""}`, wantErr: "Index is required"},
		{name: "null", body: `{"index":null}`, wantErr: "Index is required"},
		{name: "malformed body", body: `{`, wantErr: "Index is required"},
		{name: "not a number", body: `{"index":"two"}`, wantErr: "invalid index"},
	}
	for _, path := range []string{"/api/remove", "/api/use"} {
		for _, tc := range tests {
			t.Run(path+" "+tc.name, func(t *testing.T) {
				got := 0
				svc := &fakeKeyService{
					RemoveAtFunc: func(_ context.Context, idx int) (int, error) {
						got = idx
						return 1, nil
					},
					SelectAtFunc: func(_ context.Context, idx int) error {
						got = idx
						return nil
					},
				}
				rec := httptest.NewRecorder()
				newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodPost, path, tc.body))

				resp := decodeResponse(t, rec)
				if tc.wantErr != "" {
					assert.False(t, resp.Success)
					assert.Contains(t, resp.Error, tc.wantErr)
					assert.Zero(t, got)
					return
				}
				assert.True(t, resp.Success)
				assert.NotEmpty(t, resp.Message)
				assert.Equal(t, tc.wantIdx, got)
			})
		}
	}
}

func TestKeysHandler_OutOfRange(t *testing.T) {
	rangeErr := fmt.Errorf("%w: 9 not in [1, 2]", service.ErrRange)
	svc := &fakeKeyService{
		RemoveAtFunc: func(context.Context, int) (int, error) { return 0, rangeErr },
		SelectAtFunc: func(context.Context, int) error { return rangeErr },
	}
	for _, path := range []string{"/api/remove", "/api/use"} {
		rec := httptest.NewRecorder()
		newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodPost, path, `{"index":9}`))
		resp := decodeResponse(t, rec)
		assert.False(t, resp.Success, path)
		assert.Equal(t, "Index out of range", resp.Error, path)
	}
}

func TestKeysHandler_Refresh(t *testing.T) {
	var ctxErr error
	svc := &fakeKeyService{RefreshFunc: func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := localRequest(http.MethodPost, "/api/refresh", "").WithContext(ctx)
	rec := httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.NoError(t, ctxErr)

	svc.RefreshFunc = func(context.Context) error { return errors.New("write cache: denied") }
	rec = httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodPost, "/api/refresh", ""))
	resp = decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "write cache: denied", resp.Error)
}

func TestKeysHandler_Status(t *testing.T) {
	svc := &fakeKeyService{StatusFunc: func(context.Context) service.Status {
		return service.Status{Count: 2, Current: 1, CacheValid: true}
	}}
	rec := httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodGet, "/api/status", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2,"current":1,"cache_valid":true}`, rec.Body.String())
}

func TestKeysHandler_History(t *testing.T) {
	var gotIdx, gotLimit int
	svc := &fakeKeyService{HistoryFunc: func(_ context.Context, idx, limit int) ([]models.HistoryRecord, error) {
		gotIdx, gotLimit = idx, limit
		return []models.HistoryRecord{{CycleID: "c1", Position: idx - 1}}, nil
	}}
	rec := httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodGet, "/api/history?index=2&limit=5", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "c1", resp.Records[0].CycleID)
	assert.Equal(t, 2, gotIdx)
	assert.Equal(t, 5, gotLimit)

	svc.HistoryFunc = func(context.Context, int, int) ([]models.HistoryRecord, error) {
		return nil, service.ErrHistoryDisabled
	}
	rec = httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodGet, "/api/history?index=1", ""))
	r := decodeResponse(t, rec)
	assert.False(t, r.Success)
	assert.Equal(t, "Usage history is not enabled", r.Error)

	rec = httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodGet, "/api/history", ""))
	r = decodeResponse(t, rec)
	assert.Equal(t, "Index is required", r.Error)
}

func TestRouter_RejectsRemotePeers(t *testing.T) {
	called := false
	svc := &fakeKeyService{StatusFunc: func(context.Context) service.Status {
		called = true
		return service.Status{}
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	newTestRouter(svc, t.TempDir()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestRouter_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeKeyService{}, t.TempDir()).ServeHTTP(rec, localRequest(http.MethodPost, "/api/nope", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
