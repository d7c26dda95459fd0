// Package web serves the JSON API and the single-page chat UI.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
	"github.com/matsen/paperchat/internal/retrieval"
	"github.com/matsen/paperchat/internal/storage"
)

// PaperSource is the read side of the paper store used by the API.
type PaperSource interface {
	GetByID(id string) (*paper.Paper, error)
	GetByIDs(ids []string) ([]paper.Paper, error)
	SearchByKeyword(query string, filter paper.Filter, limit int) ([]paper.Paper, error)
	DistinctValues() (*storage.FilterOptions, error)
	Count() (int, error)
}

// Searcher runs semantic searches. It is optional: without one the
// semantic endpoint answers 503.
type Searcher interface {
	Search(ctx context.Context, query string, n int, filter paper.Filter) ([]retrieval.Hit, error)
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 200
)

// Server is the HTTP transport for paper search and chat.
type Server struct {
	loop      *rag.Loop
	papers    PaperSource
	searcher  Searcher
	sessions  *SessionStore
	exportDir string
	log       *logrus.Entry
}

// Option configures a Server.
type Option func(*Server)

// WithSearcher enables the semantic search endpoint.
func WithSearcher(s Searcher) Option {
	return func(srv *Server) { srv.searcher = s }
}

// WithSessions sets the session table.
func WithSessions(s *SessionStore) Option {
	return func(srv *Server) { srv.sessions = s }
}

// WithExportDir sets where conversation exports are written.
func WithExportDir(dir string) Option {
	return func(srv *Server) { srv.exportDir = dir }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(srv *Server) { srv.log = log }
}

// NewServer creates a server. loop may be nil when only search is served.
func NewServer(loop *rag.Loop, papers PaperSource, opts ...Option) *Server {
	s := &Server{
		loop:      loop,
		papers:    papers,
		sessions:  NewSessionStore(time.Hour),
		exportDir: ".",
		log:       logging.NewLogger("web"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions returns the session table.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Papers
	mux.HandleFunc("GET /api/filters", s.handleFilters)
	mux.HandleFunc("GET /api/papers/search", s.handleKeywordSearch)
	mux.HandleFunc("GET /api/papers/{id}", s.handleGetPaper)
	mux.HandleFunc("POST /api/papers/semantic", s.handleSemanticSearch)

	// Chat
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/reset", s.handleReset)
	mux.HandleFunc("GET /api/chat/state", s.handleState)
	mux.HandleFunc("POST /api/chat/export", s.handleExport)

	registerUI(mux)
	return logRequests(s.log, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":       true,
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
		"sessions": s.sessions.Len(),
		"chat":     s.loop != nil,
		"semantic": s.searcher != nil,
	}
	if n, err := s.papers.Count(); err == nil {
		resp["papers"] = n
	}
	if s.loop != nil {
		resp["model"] = s.loop.ModelName()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := s.papers.DistinctValues()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "filters": opts})
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := clampLimit(intFromQuery(r, "limit", defaultSearchLimit))
	filter := paper.Filter{
		Sessions:   q["session"],
		Topics:     q["topic"],
		EventTypes: q["eventtype"],
	}.Normalize()

	papers, err := s.papers.SearchByKeyword(strings.TrimSpace(q.Get("q")), filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if papers == nil {
		papers = []paper.Paper{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(papers), "papers": papers})
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.papers.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": fmt.Sprintf("paper not found: %s", id), "kind": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paper": p})
}

type semanticRequest struct {
	Query    string       `json:"query"`
	NResults int          `json:"n_results"`
	Filter   paper.Filter `json:"filter"`
}

type semanticResult struct {
	paper.Paper
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "semantic search is not configured", "kind": "unavailable"})
		return
	}
	var body semanticRequest
	if err := readJSON(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	body.Query = strings.TrimSpace(body.Query)
	if body.Query == "" {
		writeBadRequest(w, errors.New("missing query"))
		return
	}
	n := body.NResults
	if n <= 0 {
		n = defaultSearchLimit
	}
	n = clampLimit(n)

	hits, err := s.searcher.Search(r.Context(), body.Query, n, body.Filter.Normalize())
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", rag.ErrRetrieverUnavailable, err))
		return
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.PaperID
	}
	papers, err := s.papers.GetByIDs(ids)
	if err != nil {
		writeError(w, err)
		return
	}
	byID := make(map[string]paper.Paper, len(papers))
	for _, p := range papers {
		byID[p.ID] = p
	}

	results := make([]semanticResult, 0, len(hits))
	for _, h := range hits {
		p, ok := byID[h.PaperID]
		if !ok {
			continue
		}
		results = append(results, semanticResult{Paper: p, Distance: h.Distance, Similarity: 1 - h.Distance})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(results), "results": results})
}

type chatRequest struct {
	SessionID   string        `json:"session_id"`
	Message     string        `json:"message"`
	Mode        string        `json:"mode"` // chat (default) or query
	NResults    *int          `json:"n_results,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Filter      *paper.Filter `json:"filter,omitempty"`
}

func (r chatRequest) options() []rag.QueryOption {
	var opts []rag.QueryOption
	if r.NResults != nil {
		opts = append(opts, rag.WithNResults(*r.NResults))
	}
	if r.Temperature != nil {
		opts = append(opts, rag.WithTemperature(*r.Temperature))
	}
	if r.MaxTokens != nil {
		opts = append(opts, rag.WithMaxTokens(*r.MaxTokens))
	}
	if r.Filter != nil {
		opts = append(opts, rag.WithFilter(*r.Filter))
	}
	return opts
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.requireLoop(w) {
		return
	}
	var body chatRequest
	if err := readJSON(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}

	ask := s.loop.Chat
	switch body.Mode {
	case "", "chat":
	case "query":
		ask = s.loop.Query
	default:
		writeBadRequest(w, fmt.Errorf("invalid mode %q (valid: chat, query)", body.Mode))
		return
	}

	requested := strings.TrimSpace(body.SessionID)
	id, conv := s.sessions.GetOrCreate(requested)
	answer, err := ask(r.Context(), conv, body.Message, body.options()...)
	if err != nil {
		if id != requested {
			s.sessions.DiscardEmpty(id)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"session_id":    id,
		"answer":        answer,
		"turn_count":    conv.TurnCount(),
		"active_filter": conv.ActiveFilter(),
	})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := readJSON(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	conv, ok := s.lookup(w, body.SessionID)
	if !ok {
		return
	}
	conv.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": body.SessionID, "turn_count": 0})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	conv, ok := s.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"session_id":    id,
		"state":         conv.State(),
		"turn_count":    conv.TurnCount(),
		"active_filter": conv.ActiveFilter(),
		"turns":         conv.Turns(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireLoop(w) {
		return
	}
	var body sessionRequest
	if err := readJSON(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	conv, ok := s.lookup(w, body.SessionID)
	if !ok {
		return
	}

	path := filepath.Join(s.exportDir, rag.ExportFileName(time.Now()))
	rec, err := s.loop.Export(conv, rag.FileSink{Path: path})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path, "record": rec})
}

func (s *Server) requireLoop(w http.ResponseWriter) bool {
	if s.loop == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "chat is not configured", "kind": "unavailable"})
		return false
	}
	return true
}

func (s *Server) lookup(w http.ResponseWriter, id string) (*rag.Conversation, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		writeBadRequest(w, errors.New("missing session_id"))
		return nil, false
	}
	conv, ok := s.sessions.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown session: " + id, "kind": "not_found"})
		return nil, false
	}
	return conv, true
}

////////////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////////////

// errorStatus maps loop errors to an HTTP status and a short kind string.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, rag.ErrConversationBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, rag.ErrRetrieverUnavailable):
		return http.StatusBadGateway, "retriever_unavailable"
	case errors.Is(err, rag.ErrInferenceUnavailable):
		return http.StatusBadGateway, "inference_unavailable"
	case errors.Is(err, rag.ErrExport):
		return http.StatusInternalServerError, "export_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := errorStatus(err)
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error(), "kind": kind})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error(), "kind": "invalid_input"})
}

func readJSON(r *http.Request, dst any) error {
	if r == nil || r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()

	const maxBytes = 1_000_000
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return fmt.Errorf("failed reading request body: %v", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		b = []byte("{}")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	b, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"ok":false,"error":"failed to marshal json"}`))
		return
	}
	_, _ = w.Write(append(b, '\n'))
}

func intFromQuery(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultSearchLimit
	}
	if n > maxSearchLimit {
		return maxSearchLimit
	}
	return n
}
