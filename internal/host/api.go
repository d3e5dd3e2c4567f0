package host

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	json "github.com/goccy/go-json"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/pool"
	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/store"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	datasetsPath        = "/datasets"
	datasetDetailPrefix = datasetsPath + "/"
	dataPrefix          = "/data/"
	modulesPath         = "/modules"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

// NewHandler creates the host's HTTP handler: the catalog API, the data URL
// endpoint frames fetch, and the frame subscription websocket.
func NewHandler(svc *Service) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(datasetsPath, methodHandlers(map[string]handlerFunc{
		http.MethodGet:  svc.listDatasets,
		http.MethodPost: svc.createDatasetHandler,
	}))
	mux.Handle(datasetDetailPrefix, http.HandlerFunc(svc.handleDataset))

	mux.Handle(dataPrefix, methodHandlers(map[string]handlerFunc{
		http.MethodGet: svc.serveData,
	}))

	mux.Handle(modulesPath, methodHandlers(map[string]handlerFunc{
		http.MethodGet: svc.listModules,
	}))

	mux.Handle(schema.FrameEndpoint, http.HandlerFunc(svc.frames.HandleSubscribe))

	return withCORS(mux)
}

// datasetView is the API projection of a catalog record.
type datasetView struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	Transform string          `json:"transform"`
	Revision  uint64          `json:"revision"`
	DataURL   string          `json:"dataUrl"`
	Note      string          `json:"note,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Columns   []string        `json:"columns"`
	Rows      int             `json:"rows"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (s *Service) datasetView(record store.Record) datasetView {
	return datasetView{
		ID:        record.ID.String(),
		Slug:      record.Slug,
		Transform: record.Transform,
		Revision:  record.Revision,
		DataURL:   s.publisher.DataURL(record.Slug, record.Revision),
		Note:      record.Note,
		Params:    record.Params,
		Columns:   record.Table.ColumnNames(),
		Rows:      record.Table.RowCount(),
		UpdatedAt: record.UpdatedAt,
	}
}

func (s *Service) listDatasets(w http.ResponseWriter, r *http.Request) {
	records, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]datasetView, 0, len(records))
	for _, record := range records {
		views = append(views, s.datasetView(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": views})
}

func (s *Service) createDatasetHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDatasetRequest(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	record, err := s.createDataset(r.Context(), req)
	if err != nil {
		s.writeCatalogError(w, r, req.Slug, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.datasetView(record))
}

func (s *Service) handleDataset(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, datasetDetailPrefix)
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "dataset slug required")
		return
	}
	slug := rest

	switch r.Method {
	case http.MethodGet:
		record, err := s.catalog.Get(r.Context(), slug)
		if err != nil {
			s.writeCatalogError(w, r, slug, err)
			return
		}
		writeJSON(w, http.StatusOK, s.datasetView(record))
	case http.MethodPost:
		req, err := decodeDatasetRequest(w, r)
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		record, err := s.updateDataset(r.Context(), slug, req)
		if err != nil {
			s.writeCatalogError(w, r, slug, err)
			return
		}
		writeJSON(w, http.StatusOK, s.datasetView(record))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// serveData answers the revision-addressed document fetch a frame issues.
// Only the current revision is served; a superseded locator is gone, and the
// push that replaced it tells frames where to look instead.
func (s *Service) serveData(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, dataPrefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "expected /data/{slug}/{revision}.json")
		return
	}
	slug := parts[0]
	revPart := strings.TrimSuffix(parts[1], ".json")
	if revPart == parts[1] {
		writeError(w, http.StatusNotFound, "expected /data/{slug}/{revision}.json")
		return
	}
	revision, err := strconv.ParseUint(revPart, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid revision")
		return
	}

	record, err := s.catalog.Get(r.Context(), slug)
	if err != nil {
		s.writeCatalogError(w, r, slug, err)
		return
	}
	if record.Revision != revision {
		writeError(w, http.StatusNotFound, "revision not available")
		return
	}
	writeJSON(w, http.StatusOK, record.Document)
}

func (s *Service) listModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"transforms": s.transforms.Names(),
		"modules":    s.transforms.Modules(),
	})
}

func (s *Service) writeCatalogError(w http.ResponseWriter, r *http.Request, slug string, err error) {
	switch {
	case errs.HasCode(err, errs.CodeNotFound):
		message := "dataset not found"
		if suggestion := s.nearestSlug(r, slug); suggestion != "" {
			message = fmt.Sprintf("dataset not found (did you mean %q?)", suggestion)
		}
		writeError(w, http.StatusNotFound, message)
	case errs.HasCode(err, errs.CodeConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errs.HasCode(err, errs.CodeInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errs.HasCode(err, errs.CodeRender):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// nearestSlug suggests the closest catalogued slug, empty when nothing is
// close enough to be a plausible typo.
func (s *Service) nearestSlug(r *http.Request, target string) string {
	records, err := s.catalog.List(r.Context())
	if err != nil || len(records) == 0 {
		return ""
	}
	best, bestDist := "", 0
	for _, record := range records {
		dist := levenshtein.ComputeDistance(target, record.Slug)
		if best == "" || dist < bestDist {
			best, bestDist = record.Slug, dist
		}
	}
	longer := len(target)
	if len(best) > longer {
		longer = len(best)
	}
	if longer == 0 || float64(bestDist)/float64(longer) >= 0.5 {
		return ""
	}
	return best
}

func decodeDatasetRequest(w http.ResponseWriter, r *http.Request) (datasetRequest, error) {
	limitRequestBody(w, r)
	defer func() {
		_ = r.Body.Close()
	}()
	var req datasetRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		return req, fmt.Errorf("decode payload: %w", err)
	}
	req.Slug = strings.TrimSpace(req.Slug)
	req.Transform = strings.TrimSpace(req.Transform)
	return req, nil
}

func methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = pool.WriteJSON(w, payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
