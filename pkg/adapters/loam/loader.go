// Package loam loads stage graphs from a Loam repository.
//
// Each document is one graph. Its metadata holds the definition and, for
// Markdown documents, the body becomes the graph description.
package loam

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/loam"
	"github.com/aretw0/redline/internal/compiler"
	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
)

// Loader adapts a Loam repository to ports.GraphLoader.
type Loader struct {
	Repo   *loam.TypedRepository[GraphMetadata]
	parser *compiler.Parser
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.StageGraph
}

// Option configures the Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[GraphMetadata], opts ...Option) *Loader {
	l := &Loader{
		Repo:   repo,
		parser: compiler.NewParser(),
		logger: logging.NewNop(),
		cache:  make(map[string]*domain.StageGraph),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open initializes a read-only Loam repository at path and wraps it.
func Open(path string, opts ...Option) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode makes every adapter (JSON, Markdown/YAML) report numbers the same way.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[GraphMetadata](repo), opts...), nil
}

// LoadGraph returns the graph with the given ID. The ID is the document's
// "id" key, or its path without extension.
func (l *Loader) LoadGraph(ctx context.Context, id string) (*domain.StageGraph, error) {
	l.mu.RLock()
	g, ok := l.cache[id]
	l.mu.RUnlock()
	if ok {
		return g, nil
	}

	graphs, err := l.compileAll(ctx)
	if err != nil {
		return nil, err
	}
	g, ok = graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, id)
	}
	return g, nil
}

// ListGraphs lists every graph in the repository.
func (l *Loader) ListGraphs(ctx context.Context) ([]string, error) {
	graphs, err := l.compileAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(graphs))
	for id := range graphs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Invalidate drops every compiled graph; the next lookup reads the repository again.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]*domain.StageGraph)
	l.mu.Unlock()
}

func (l *Loader) compileAll(ctx context.Context) (map[string]*domain.StageGraph, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	graphs := make(map[string]*domain.StageGraph, len(docs))
	for _, entry := range docs {
		// List only carries cached metadata; Get reads the front-matter and body.
		doc, err := l.Repo.Get(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("loam get failed for %s: %w", entry.ID, err)
		}
		raw := map[string]any(doc.Data)
		if raw == nil {
			raw = make(map[string]any)
		}
		id := trimExtension(doc.ID)
		if explicit, ok := raw["id"].(string); ok && explicit != "" {
			id = trimExtension(explicit)
		}
		raw["id"] = id
		if _, ok := raw["description"]; !ok && strings.TrimSpace(doc.Content) != "" {
			raw["description"] = strings.TrimSpace(doc.Content)
		}

		// Collision Detection
		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: collision detected: ID '%s' is defined in both '%s' and '%s'", domain.ErrInvalidGraph, id, existingPath, doc.ID)
		}
		seen[id] = doc.ID

		g, err := l.parser.Compile(raw, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.ID, err)
		}
		graphs[id] = g
	}

	l.mu.Lock()
	l.cache = graphs
	l.mu.Unlock()
	l.logger.Debug("Compiled loam graphs", "count", len(graphs))
	return graphs, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch reports the IDs of changed documents and invalidates the cache on
// every change.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				l.Invalidate()
				l.logger.Info("Graph document changed", "document", evt.ID)
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
