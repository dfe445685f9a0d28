// Package file serves stage graphs from a directory of YAML or JSON files.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/redline/internal/compiler"
	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
	"golang.org/x/sync/singleflight"
)

var extensions = []string{".yaml", ".yml", ".json"}

type entry struct {
	modTime time.Time
	graph   *domain.StageGraph
}

// Loader implements ports.GraphLoader over a directory (non-recursive).
// Graphs are compiled on first use and recompiled when the file's
// modification time changes.
type Loader struct {
	dir    string
	parser *compiler.Parser
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]entry // by path
	group singleflight.Group
}

// Option configures the Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithStrict rejects unknown keys in graph files.
func WithStrict(strict bool) Option {
	return func(l *Loader) {
		l.parser.Strict = strict
	}
}

// New creates a loader for dir.
func New(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:    dir,
		parser: compiler.NewParser(),
		logger: logging.NewNop(),
		cache:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadGraph returns the graph with the given ID.
func (l *Loader) LoadGraph(ctx context.Context, id string) (*domain.StageGraph, error) {
	graphs, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, id)
	}
	return g, nil
}

// ListGraphs returns the IDs of every graph in the directory, sorted.
// Any invalid file fails the whole listing.
func (l *Loader) ListGraphs(ctx context.Context) ([]string, error) {
	graphs, err := l.scan(ctx)
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

// scan compiles every graph file in the directory, reusing cached graphs
// whose files have not changed.
func (l *Loader) scan(ctx context.Context) (map[string]*domain.StageGraph, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph directory %s: %w", l.dir, err)
	}

	graphs := make(map[string]*domain.StageGraph)
	origin := make(map[string]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !slices.Contains(extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		g, err := l.load(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := origin[g.ID]; ok {
			return nil, fmt.Errorf("%w: graph %q is defined in both %s and %s", domain.ErrInvalidGraph, g.ID, prev, path)
		}
		origin[g.ID] = path
		graphs[g.ID] = g
	}
	return graphs, nil
}

func (l *Loader) load(path string) (*domain.StageGraph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	l.mu.RLock()
	cached, ok := l.cache[path]
	l.mu.RUnlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.graph, nil
	}

	v, err, _ := l.group.Do(path, func() (any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		g, err := l.parser.ParseAs(data, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		l.mu.Lock()
		l.cache[path] = entry{modTime: info.ModTime(), graph: g}
		l.mu.Unlock()
		l.logger.Debug("Compiled stage graph", "path", path, "graph_id", g.ID)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.StageGraph), nil
}
