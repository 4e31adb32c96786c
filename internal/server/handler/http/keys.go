// Package http provides the HTTP handlers of the oroio daemon: the key
// management API and read access to the raw store files.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/models"
	"github.com/atinyakov/oroio/internal/service"
)

// KeyService defines the key operations required by the KeysHandler.
type KeyService interface {
	// Add appends a key and returns the new key count.
	Add(ctx context.Context, key string) (int, error)
	// RemoveAt deletes the key at a 1-based index and returns the remaining count.
	RemoveAt(ctx context.Context, idx int) (int, error)
	// SelectAt makes the key at a 1-based index current.
	SelectAt(ctx context.Context, idx int) error
	// Refresh fetches usage for every key and rewrites the usage cache.
	Refresh(ctx context.Context) error
	// Status reports count, current index and cache validity.
	Status(ctx context.Context) service.Status
	// History returns recorded snapshots for the key at a 1-based index.
	History(ctx context.Context, idx, limit int) ([]models.HistoryRecord, error)
}

// KeysHandler handles the /api endpoints.
type KeysHandler struct {
	// KeyService performs the underlying key operations.
	KeyService KeyService
	// Log receives failures that are reported to the caller as JSON.
	Log *zap.Logger
}

// Response is the JSON envelope of every /api answer. Failures are
// reported with success=false and HTTP 200.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HistoryResponse carries the rows of GET /api/history.
type HistoryResponse struct {
	Response
	Records []models.HistoryRecord `json:"records"`
}

type keyRequest struct {
	Key   string          `json:"key"`
	Index json.RawMessage `json:"index"`
}

var errIndexRequired = errors.New("Index is required")

// Add handles POST /api/add with a JSON body {"key": "..."}.
func (h *KeysHandler) Add(w http.ResponseWriter, r *http.Request) {
	req := decodeRequest(r)
	n, err := h.KeyService.Add(r.Context(), req.Key)
	switch {
	case errors.Is(err, service.ErrEmptyKey):
		writeJSON(w, Response{Error: "Key is required"})
	case err != nil:
		h.fail(w, "add key", err)
	default:
		writeJSON(w, Response{Success: true, Message: fmt.Sprintf("Added. %d keys stored.", n)})
	}
}

// Remove handles POST /api/remove with a JSON body {"index": N}. The index
// is 1-based and may be sent as a number or a numeric string.
func (h *KeysHandler) Remove(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(decodeRequest(r).Index)
	if err != nil {
		writeJSON(w, Response{Error: err.Error()})
		return
	}
	n, err := h.KeyService.RemoveAt(r.Context(), idx)
	if err != nil {
		h.fail(w, "remove key", err)
		return
	}
	writeJSON(w, Response{Success: true, Message: fmt.Sprintf("Removed. %d keys left.", n)})
}

// Use handles POST /api/use with a JSON body {"index": N}.
func (h *KeysHandler) Use(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(decodeRequest(r).Index)
	if err != nil {
		writeJSON(w, Response{Error: err.Error()})
		return
	}
	if err := h.KeyService.SelectAt(r.Context(), idx); err != nil {
		h.fail(w, "select key", err)
		return
	}
	writeJSON(w, Response{Success: true, Message: fmt.Sprintf("Switched to key %d", idx)})
}

// Refresh handles POST /api/refresh. The fetches outlive a disconnecting
// client so the cache is always rewritten once started.
func (h *KeysHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.KeyService.Refresh(context.WithoutCancel(r.Context())); err != nil {
		h.fail(w, "refresh usage", err)
		return
	}
	writeJSON(w, Response{Success: true})
}

// Status handles GET /api/status.
func (h *KeysHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.KeyService.Status(r.Context()))
}

// History handles GET /api/history?index=N&limit=M.
func (h *KeysHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	idx, err := parseIndexString(q.Get("index"))
	if err != nil {
		writeJSON(w, Response{Error: err.Error()})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	records, err := h.KeyService.History(r.Context(), idx, limit)
	if err != nil {
		h.fail(w, "load usage history", err)
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	writeJSON(w, HistoryResponse{Response: Response{Success: true}, Records: records})
}

func (h *KeysHandler) fail(w http.ResponseWriter, op string, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrRange):
		msg = "Index out of range"
	case errors.Is(err, service.ErrHistoryDisabled):
		msg = "Usage history is not enabled"
	default:
		if h.Log != nil {
			h.Log.Error("request failed", zap.String("op", op), zap.Error(err))
		}
	}
	writeJSON(w, Response{Error: msg})
}

// decodeRequest reads the JSON body. A missing or malformed body is
// treated as an empty object.
func decodeRequest(r *http.Request) keyRequest {
	var req keyRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req
}

// parseIndex accepts a JSON number or a numeric string. Absent, null, zero
// and empty values all mean "no index".
func parseIndex(raw json.RawMessage) (int, error) {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" || v == `""` || v == "false" {
		return 0, errIndexRequired
	}
	if strings.HasPrefix(v, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("invalid index %s", v)
		}
		return parseIndexString(s)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid index %s", v)
	}
	if f == 0 {
		return 0, errIndexRequired
	}
	return int(f), nil
}

func parseIndexString(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errIndexRequired
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return idx, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
