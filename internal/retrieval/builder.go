package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matsen/paperchat/internal/embedding"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	// MaxTextLength is the maximum text length (in bytes) to embed.
	// ~8000 characters is ~2000 tokens, inside the context of common embedding models.
	MaxTextLength = 8000

	// upsertBatchSize bounds the papers embedded and written per batch.
	upsertBatchSize = 64
)

// ProgressReporter receives progress updates during index building.
type ProgressReporter interface {
	// OnProgress is called with the current progress.
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// BuildStats contains statistics from index building.
type BuildStats struct {
	PapersIndexed int           `json:"papers_indexed"`
	PapersSkipped int           `json:"papers_skipped"`
	PapersCurrent int           `json:"papers_current"` // already up to date (incremental)
	SkippedReason string        `json:"skipped_reason"`
	Incremental   bool          `json:"incremental"`
	Duration      time.Duration `json:"duration"`
}

// Builder embeds papers and writes them to a Store, recording embedding
// metadata so later builds can skip unchanged papers.
type Builder struct {
	provider embedding.Provider
	store    Store
	db       *storage.DB
	progress ProgressReporter
	log      *logrus.Entry
}

// NewBuilder creates a new index builder. db may be nil, which disables
// metadata tracking and incremental builds.
func NewBuilder(provider embedding.Provider, store Store, db *storage.DB) *Builder {
	return &Builder{
		provider: provider,
		store:    store,
		db:       db,
		log:      logging.NewLogger("index"),
	}
}

// SetProgressReporter sets the progress reporter for the builder.
func (b *Builder) SetProgressReporter(reporter ProgressReporter) {
	b.progress = reporter
}

// SetLogger replaces the builder's logger.
func (b *Builder) SetLogger(log *logrus.Entry) {
	b.log = log
}

// EmbedText returns the text embedded for a paper: title and abstract,
// truncated to MaxTextLength at a UTF-8 boundary.
func EmbedText(title, abstract string) string {
	return truncateUTF8(strings.TrimSpace(title)+"\n\n"+strings.TrimSpace(abstract), MaxTextLength)
}

// TextHash is the staleness hash recorded for a paper's embedded text.
func TextHash(title, abstract string) string {
	return storage.HashText(EmbedText(title, abstract))
}

// Build embeds papers into the store. Papers without an abstract are skipped.
// In incremental mode only papers whose embedding is missing or stale are
// re-embedded; otherwise the store and metadata are cleared first.
func (b *Builder) Build(ctx context.Context, papers []paper.Paper, incremental bool) (*BuildStats, error) {
	startTime := time.Now()
	stats := &BuildStats{SkippedReason: "no_abstract", Incremental: incremental && b.db != nil}

	todo := papers
	if stats.Incremental {
		stale, err := b.db.ListStaleEmbeddings(b.provider.ModelName(), TextHash)
		if err != nil {
			return nil, fmt.Errorf("listing stale embeddings: %w", err)
		}
		staleSet := make(map[string]bool, len(stale))
		for _, id := range stale {
			staleSet[id] = true
		}
		todo = make([]paper.Paper, 0, len(stale))
		for _, p := range papers {
			if staleSet[p.ID] {
				todo = append(todo, p)
			} else if strings.TrimSpace(p.Abstract) != "" {
				stats.PapersCurrent++
			}
		}
	} else {
		if err := b.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clearing store: %w", err)
		}
		if b.db != nil {
			if err := b.db.ClearEmbeddingMetadata(); err != nil {
				return nil, fmt.Errorf("clearing embedding metadata: %w", err)
			}
		}
	}

	b.log.WithFields(logrus.Fields{
		"model":       b.provider.ModelName(),
		"papers":      len(papers),
		"to_embed":    len(todo),
		"incremental": stats.Incremental,
	}).Info("building index")

	total := len(todo)
	pending := make([]paper.Paper, 0, upsertBatchSize)
	texts := make([]string, 0, upsertBatchSize)

	// flush embeds the pending papers in one provider call and writes them.
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		embs, err := embedding.EmbedAll(ctx, b.provider, texts)
		if err != nil {
			return fmt.Errorf("embedding papers %s..%s: %w", pending[0].ID, pending[len(pending)-1].ID, err)
		}

		docs := make([]Document, len(pending))
		for i, p := range pending {
			docs[i] = DocumentFor(p, embs[i].Vector)
		}
		if err := b.store.Upsert(ctx, docs); err != nil {
			return fmt.Errorf("writing embeddings: %w", err)
		}
		if b.db != nil {
			now := time.Now().Unix()
			metas := make([]storage.EmbeddingMetadata, len(pending))
			for i, p := range pending {
				metas[i] = storage.EmbeddingMetadata{
					PaperID:      p.ID,
					ModelName:    b.provider.ModelName(),
					IndexedAt:    now,
					AbstractHash: storage.HashText(texts[i]),
				}
			}
			if err := b.db.SaveEmbeddingMetadataBatch(metas); err != nil {
				return err
			}
		}
		stats.PapersIndexed += len(pending)
		pending = pending[:0]
		texts = texts[:0]
		return nil
	}

	for i, p := range todo {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if b.progress != nil {
			b.progress.OnProgress(i+1, total)
		}

		if strings.TrimSpace(p.Abstract) == "" {
			stats.PapersSkipped++
			continue
		}

		pending = append(pending, p)
		texts = append(texts, EmbedText(p.Title, p.Abstract))
		if len(pending) >= upsertBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if f, ok := b.store.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return nil, fmt.Errorf("saving index: %w", err)
		}
	}

	stats.Duration = time.Since(startTime)
	b.log.WithFields(logrus.Fields{
		"indexed":  stats.PapersIndexed,
		"skipped":  stats.PapersSkipped,
		"current":  stats.PapersCurrent,
		"duration": stats.Duration.String(),
	}).Info("index built")

	return stats, nil
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
