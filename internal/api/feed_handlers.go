package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/feedindex/internal/feedindex"
	"github.com/onnwee/feedindex/internal/middleware"
	"github.com/onnwee/feedindex/internal/registry"
	"github.com/onnwee/feedindex/internal/tracing"
	"github.com/onnwee/feedindex/internal/validate"
)

// FeedHandlers exposes the registry's ping/clear/update/remove/query/total
// operations over HTTP. Wire formats match the original Rust service's
// JSON shapes: posts travel as {ts, id} pairs grouped by source name.
type FeedHandlers struct {
	registry *registry.Registry
}

// NewFeedHandlers returns handlers bound to the given registry.
func NewFeedHandlers(reg *registry.Registry) *FeedHandlers {
	return &FeedHandlers{registry: reg}
}

// wirePost is the JSON shape of a single post within an update/remove batch.
type wirePost struct {
	Ts uint64 `json:"ts"`
	ID uint64 `json:"id"`
}

// UpdateBatch is the JSON shape of one element of an /update or /remove
// request body: a source name and the posts to add or remove from it.
type UpdateBatch struct {
	Subsite string     `json:"subsite"`
	Posts   []wirePost `json:"posts"`
}

// QueryRequest is the JSON body of a /query request.
type QueryRequest struct {
	Subsites []string `json:"subsites"`
	Offset   int      `json:"offset"`
	Limit    int      `json:"limit"`
}

// QueryResponse is the JSON body returned by /query.
type QueryResponse struct {
	PostIDs      []uint64 `json:"post_ids"`
	Total        int      `json:"total"`
	CacheIsEmpty bool     `json:"cache_is_empty"`
}

func toRegistryBatches(wire []UpdateBatch) []registry.UpdateBatch {
	batches := make([]registry.UpdateBatch, 0, len(wire))
	for _, b := range wire {
		posts := make([]feedindex.Post, 0, len(b.Posts))
		for _, p := range b.Posts {
			posts = append(posts, feedindex.Post{Ts: feedindex.Ts(p.Ts), ID: feedindex.ID(p.ID)})
		}
		batches = append(batches, registry.UpdateBatch{Source: b.Subsite, Posts: posts})
	}
	return batches
}

// Ping handles GET /ping. It always succeeds and never touches the
// registry lock.
func (h *FeedHandlers) Ping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}
	writePlainText(w, h.registry.Ping())
}

// Clear handles POST /clear, dropping every source from the registry.
func (h *FeedHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}

	_, end := tracing.StartRegistrySpan(r.Context(), tracing.RegistryOperationClear, nil)
	h.registry.Clear()
	end(nil)

	writePlainText(w, "OK")
}

// Update handles POST /update: upsert posts into named sources, creating
// sources that don't yet exist.
func (h *FeedHandlers) Update(w http.ResponseWriter, r *http.Request) {
	h.applyBatches(w, r, h.registry.Update)
}

// Remove handles POST /remove: remove posts from named sources, silently
// ignoring batches naming an unknown source.
func (h *FeedHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	h.applyBatches(w, r, h.registry.Remove)
}

func (h *FeedHandlers) applyBatches(w http.ResponseWriter, r *http.Request, apply func([]registry.UpdateBatch)) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}

	var wire []UpdateBatch
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMalformedBody)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMalformedBody, "request body must be a JSON array of batches")
		return
	}

	for i, b := range wire {
		if _, err := validate.SourceName(b.Subsite); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid subsite at index "+strconv.Itoa(i)+": "+err.Error())
			return
		}
	}

	apply(toRegistryBatches(wire))
	writePlainText(w, "OK")
}

// Query handles POST /query: run the offset resolver and merge reader
// over the named sources and return the paginated, descending post ids.
func (h *FeedHandlers) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMalformedBody)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMalformedBody, "request body must be a query object")
		return
	}
	if req.Offset < 0 || req.Limit < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "offset and limit must be non-negative")
		return
	}

	_, end := tracing.StartRegistrySpan(r.Context(), tracing.RegistryOperationQuery, req.Subsites)
	result := h.registry.Query(req.Subsites, req.Offset, req.Limit)
	end(nil)

	ids := make([]uint64, len(result.PostIDs))
	for i, id := range result.PostIDs {
		ids[i] = uint64(id)
	}

	resp := QueryResponse{
		PostIDs:      ids,
		Total:        result.Total,
		CacheIsEmpty: result.CacheIsEmpty,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode query response", "error", err)
	}
}

// Total handles POST /total: sum post counts across the named sources.
func (h *FeedHandlers) Total(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}

	var sources []string
	if err := json.NewDecoder(r.Body).Decode(&sources); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMalformedBody)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMalformedBody, "request body must be a JSON array of source names")
		return
	}

	total := h.registry.Total(sources)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(total); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode total response", "error", err)
	}
}

func writePlainText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
