package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/redline/internal/compiler"
	"github.com/aretw0/redline/pkg/ports"
)

// ValidateFiles compiles every graph file named by paths. Directories are
// scanned (non-recursively) for .yaml, .yml and .json files. Each file gets a
// report line; the error counts the failures.
func ValidateFiles(w io.Writer, paths []string, strict bool) error {
	files, err := expand(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no graph files found in %s", strings.Join(paths, ", "))
	}

	parser := compiler.NewParser()
	parser.Strict = strict
	failed := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err == nil {
			base := filepath.Base(path)
			g, perr := parser.ParseAs(data, strings.TrimSuffix(base, filepath.Ext(base)))
			if perr == nil {
				fmt.Fprintf(w, "✅ %s: %s (%d stages)\n", path, g.ID, len(g.Stages))
				continue
			}
			err = perr
		}
		failed++
		fmt.Fprintf(w, "❌ %s: %v\n", path, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graph files are invalid", failed, len(files))
	}
	return nil
}

// ValidateLoader loads every graph the loader lists.
func ValidateLoader(ctx context.Context, w io.Writer, loader ports.GraphLoader) error {
	ids, err := loader.ListGraphs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		g, err := loader.LoadGraph(ctx, id)
		if err != nil {
			return fmt.Errorf("graph %s: %w", id, err)
		}
		fmt.Fprintf(w, "✅ %s (%d stages)\n", g.ID, len(g.Stages))
	}
	return nil
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".yaml", ".yml", ".json":
				if !e.IsDir() {
					files = append(files, filepath.Join(p, e.Name()))
				}
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
