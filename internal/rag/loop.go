// Package rag implements the conversational retrieval loop: query rewriting,
// retrieval, context assembly, answer generation and citation bookkeeping.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/llm"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/retrieval"
)

// Retriever finds papers similar to a free-text query.
type Retriever interface {
	Search(ctx context.Context, query string, n int, filter paper.Filter) ([]retrieval.Hit, error)
}

// PaperStore hydrates paper records. Missing ids are omitted, not errors.
type PaperStore interface {
	GetByIDs(ids []string) ([]paper.Paper, error)
}

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 60 * time.Second

// Settings are the defaults applied to every turn.
type Settings struct {
	NResults         int
	MaxResults       int
	HistoryWindow    int
	MaxAbstractChars int
	Temperature      float64
	MaxTokens        int
	ReuseThreshold   float64
	SystemPrompt     string
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		NResults:         config.DefaultNResults,
		MaxResults:       config.DefaultMaxResults,
		HistoryWindow:    config.DefaultHistoryWindow,
		MaxAbstractChars: config.DefaultMaxAbstractChars,
		Temperature:      config.DefaultTemperature,
		MaxTokens:        config.DefaultMaxTokens,
		ReuseThreshold:   config.DefaultReuseThreshold,
		SystemPrompt:     DefaultSystemPrompt,
	}
}

// SettingsFromConfig builds Settings from a loaded repository config.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	s.NResults = cfg.Chat.NResults
	s.MaxResults = cfg.Chat.MaxResults
	s.HistoryWindow = cfg.Chat.HistoryWindow
	s.MaxAbstractChars = cfg.Chat.MaxAbstractChars
	s.ReuseThreshold = cfg.Chat.ReuseThreshold
	s.Temperature = cfg.LLM.Temperature
	s.MaxTokens = cfg.LLM.MaxTokens
	if cfg.Chat.SystemPrompt != "" {
		s.SystemPrompt = cfg.Chat.SystemPrompt
	}
	return s
}

// Loop answers questions about papers. It holds collaborators and defaults
// only; conversation state lives in the Conversation passed to each call,
// so one Loop can serve many conversations concurrently.
type Loop struct {
	retriever Retriever
	papers    PaperStore
	client    llm.Client
	rewriter  Rewriter
	settings  Settings
	timeout   time.Duration
	log       *logrus.Entry
}

// Option configures a Loop.
type Option func(*Loop)

// WithTimeout bounds each retrieval and inference call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Loop) { l.log = log }
}

// WithRewriter sets the rewriting strategy used by Chat.
func WithRewriter(r Rewriter) Option {
	return func(l *Loop) { l.rewriter = r }
}

// WithSettings replaces the per-turn defaults.
func WithSettings(s Settings) Option {
	return func(l *Loop) { l.settings = s }
}

// New creates a Loop.
func New(retriever Retriever, papers PaperStore, client llm.Client, opts ...Option) *Loop {
	l := &Loop{
		retriever: retriever,
		papers:    papers,
		client:    client,
		rewriter:  HeuristicRewriter{},
		settings:  DefaultSettings(),
		timeout:   DefaultTimeout,
		log:       logging.NewLogger("rag"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Settings returns the per-turn defaults.
func (l *Loop) Settings() Settings {
	return l.settings
}

// ModelName returns the inference model identifier.
func (l *Loop) ModelName() string {
	return l.client.ModelName()
}

// QueryOption overrides a default for one call.
type QueryOption func(*turnOptions)

type turnOptions struct {
	nResults     int
	nSet         bool
	temperature  float64
	maxTokens    int
	systemPrompt string
	filter       *paper.Filter
}

// WithNResults sets how many papers to retrieve. Values above the
// configured ceiling are clamped; non-positive values are rejected.
func WithNResults(n int) QueryOption {
	return func(o *turnOptions) {
		o.nResults = n
		o.nSet = true
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) QueryOption {
	return func(o *turnOptions) { o.temperature = t }
}

// WithMaxTokens sets the completion length limit.
func WithMaxTokens(n int) QueryOption {
	return func(o *turnOptions) { o.maxTokens = n }
}

// WithSystemPrompt replaces the system prompt.
func WithSystemPrompt(p string) QueryOption {
	return func(o *turnOptions) { o.systemPrompt = p }
}

// WithFilter replaces the conversation's active filter for this and later
// turns. An empty filter clears it. The change is kept only if the call
// succeeds.
func WithFilter(f paper.Filter) QueryOption {
	return func(o *turnOptions) {
		nf := f.Normalize()
		o.filter = &nf
	}
}

func (l *Loop) resolveOptions(opts []QueryOption) (turnOptions, error) {
	o := turnOptions{
		nResults:     l.settings.NResults,
		temperature:  l.settings.Temperature,
		maxTokens:    l.settings.MaxTokens,
		systemPrompt: l.settings.SystemPrompt,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.nResults <= 0 {
		return o, invalidInput("n_results must be positive, got %d", o.nResults)
	}
	if l.settings.MaxResults > 0 && o.nResults > l.settings.MaxResults {
		o.nResults = l.settings.MaxResults
	}
	if o.temperature < 0 {
		return o, invalidInput("temperature must not be negative, got %v", o.temperature)
	}
	if o.maxTokens < 0 {
		return o, invalidInput("max_tokens must not be negative, got %d", o.maxTokens)
	}
	if strings.TrimSpace(o.systemPrompt) == "" {
		o.systemPrompt = DefaultSystemPrompt
	}
	return o, nil
}

// Query answers text as the first turn of a fresh sub-conversation: no
// rewriting, no history in the prompt. The exchange is still appended to conv.
func (l *Loop) Query(ctx context.Context, conv *Conversation, text string, opts ...QueryOption) (*Answer, error) {
	return l.turn(ctx, conv, text, false, opts)
}

// Chat answers text in the context of conv: the query is rewritten against
// the previous exchange, the previous papers are reused when the query is
// equivalent, and recent turns are included in the prompt.
func (l *Loop) Chat(ctx context.Context, conv *Conversation, text string, opts ...QueryOption) (*Answer, error) {
	return l.turn(ctx, conv, text, true, opts)
}

// Reset clears conv.
func (l *Loop) Reset(conv *Conversation) {
	conv.Reset()
}

func (l *Loop) turn(ctx context.Context, conv *Conversation, text string, chat bool, opts []QueryOption) (*Answer, error) {
	if conv == nil {
		return nil, invalidInput("nil conversation")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput("message is empty")
	}
	o, err := l.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	snap, err := conv.begin()
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			conv.abort()
		}
	}()

	filter := snap.filter
	if o.filter != nil {
		filter = *o.filter
	}

	log := l.log.WithFields(logrus.Fields{
		"mode":      modeName(chat),
		"n_results": o.nResults,
	})

	meta := Meta{Query: text, RetrievedNewPapers: true, Filter: filter.Clone(), Model: l.client.ModelName()}
	if chat {
		meta.Query = l.rewrite(ctx, log, snap.turns, text)
		if meta.Query != text {
			meta.RewrittenQuery = meta.Query
		}
	}

	var papers []RetrievedPaper
	_, prev := lastExchange(snap.turns)
	if chat && prev != nil && prev.Query != "" &&
		equivalentQueries(meta.Query, prev.Query, l.settings.ReuseThreshold) &&
		filter.Equal(prev.Filter) {
		log.WithField("query", meta.Query).Debug("reusing previous papers")
		meta.RetrievedNewPapers = false
		citations := prev.Citations
		if len(citations) > o.nResults {
			citations = citations[:o.nResults]
		}
		papers, err = l.rehydrate(ctx, citations)
	} else {
		papers, err = l.retrieve(ctx, meta.Query, o.nResults, filter)
	}
	if err != nil {
		log.WithError(err).Warn("retrieval failed")
		return nil, err
	}

	var window []Turn
	if chat {
		window = historyWindow(snap.turns, l.settings.HistoryWindow)
	}
	messages := buildMessages(o.systemPrompt, BuildContext(papers, l.settings.MaxAbstractChars), window, text)

	start := time.Now()
	answerText, err := l.complete(ctx, messages, llm.Options{Temperature: llm.Temperature(o.temperature), MaxTokens: o.maxTokens})
	if err != nil {
		log.WithError(err).Warn("inference failed")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"papers":   len(papers),
		"reused":   !meta.RetrievedNewPapers,
		"duration": time.Since(start).String(),
	}).Debug("answer generated")

	now := time.Now()
	user := Turn{Role: RoleUser, Content: text, Timestamp: now}
	assistant := Turn{
		Role:      RoleAssistant,
		Content:   answerText,
		Citations: citationsFor(papers),
		Query:     meta.Query,
		Filter:    filter.Clone(),
		Timestamp: now,
	}
	conv.commit(snap, user, assistant, o.filter)
	committed = true

	return &Answer{Text: answerText, Papers: papers, Meta: meta}, nil
}

func (l *Loop) rewrite(ctx context.Context, log *logrus.Entry, history []Turn, text string) string {
	if l.rewriter == nil || len(history) == 0 {
		return text
	}
	ctx, cancel := l.callContext(ctx)
	defer cancel()

	out, err := l.rewriter.Rewrite(ctx, history, text)
	if err != nil {
		log.WithError(err).Warn("query rewrite failed, using raw text")
		return text
	}
	if out = strings.TrimSpace(out); out == "" {
		return text
	}
	if out != text {
		log.WithFields(logrus.Fields{"text": text, "rewritten": out}).Debug("query rewritten")
	}
	return out
}

func (l *Loop) retrieve(ctx context.Context, query string, n int, filter paper.Filter) ([]RetrievedPaper, error) {
	ctx, cancel := l.callContext(ctx)
	defer cancel()

	hits, err := l.retriever.Search(ctx, query, n, filter)
	if err != nil {
		return nil, retrieverError("retriever.search", err)
	}
	if len(hits) > n {
		hits = hits[:n]
	}

	ids := make([]string, len(hits))
	distances := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.PaperID
		if _, seen := distances[h.PaperID]; !seen {
			distances[h.PaperID] = h.Distance
		}
	}
	return l.hydrate(ids, distances)
}

// rehydrate loads the papers of a previous turn, keeping its distances.
func (l *Loop) rehydrate(ctx context.Context, citations []Citation) ([]RetrievedPaper, error) {
	if err := ctx.Err(); err != nil {
		return nil, retrieverError("papers.get_by_ids", err)
	}
	ids := make([]string, len(citations))
	distances := make(map[string]float64, len(citations))
	for i, c := range citations {
		ids[i] = c.PaperID
		distances[c.PaperID] = c.Distance
	}
	return l.hydrate(ids, distances)
}

func (l *Loop) hydrate(ids []string, distances map[string]float64) ([]RetrievedPaper, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := l.papers.GetByIDs(ids)
	if err != nil {
		return nil, retrieverError("papers.get_by_ids", err)
	}
	byID := make(map[string]paper.Paper, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	out := make([]RetrievedPaper, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, RetrievedPaper{Paper: p, Distance: distances[id]})
	}
	return out, nil
}

func (l *Loop) complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	ctx, cancel := l.callContext(ctx)
	defer cancel()

	out, err := l.client.Complete(ctx, messages, opts)
	if err != nil {
		return "", inferenceError("llm.complete", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", inferenceError("llm.complete", fmt.Errorf("%w: empty answer", llm.ErrMalformedResponse))
	}
	return out, nil
}

func (l *Loop) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func citationsFor(papers []RetrievedPaper) []Citation {
	if len(papers) == 0 {
		return nil
	}
	out := make([]Citation, len(papers))
	for i, p := range papers {
		out[i] = Citation{PaperID: p.ID, Title: p.Title, Distance: p.Distance}
	}
	return out
}

func modeName(chat bool) string {
	if chat {
		return "chat"
	}
	return "query"
}
