// Package scanner walks a project tree and produces a content-addressed
// manifest: one (path, sha256, size) row per retained file plus a tree
// hash over the sorted rows. Two scans of identical content yield
// byte-identical manifests.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ping-mem/pingmem/internal/config"
	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/gitignore"
)

// ignoredDirs are never descended into.
var ignoredDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"node_modules":  true,
	"vendor":        true,
	"dist":          true,
	"build":         true,
	"target":        true,
	"__pycache__":   true,
	".idea":         true,
	".vscode":       true,
	config.StateDir: true,
}

// IgnoredDir reports whether a directory name is excluded from scans.
// The file watcher shares this list so it never watches ignored trees.
func IgnoredDir(name string) bool { return ignoredDirs[name] }

// ignoredFiles are lockfiles and similar generated artifacts.
var ignoredFiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"go.sum":            true,
	".DS_Store":         true,
}

// DefaultMaxFileSize bounds per-file reads (1MB).
const DefaultMaxFileSize = 1 << 20

// ManifestFile is one retained file.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest is the result of one scan.
type Manifest struct {
	ProjectID   string         `json:"projectId"`
	Root        string         `json:"root"`
	TreeHash    string         `json:"treeHash"`
	Files       []ManifestFile `json:"files"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// HasChanges reports whether the tree hash differs from prev. A nil
// prev always reports changes.
func (m *Manifest) HasChanges(prev *Manifest) bool {
	return prev == nil || prev.TreeHash != m.TreeHash
}

// ProjectID derives the stable project identifier from the absolute
// root path.
func ProjectID(absRoot string) string {
	sum := sha256.Sum256([]byte(absRoot))
	return "ping-mem-" + hex.EncodeToString(sum[:])[:12]
}

// Options configure a scan.
type Options struct {
	MaxFileSize int64 // 0 = DefaultMaxFileSize
	Workers     int   // 0 = NumCPU
}

// Scanner produces manifests.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks root and returns its manifest.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) (*Manifest, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, pingerr.Wrap(pingerr.ErrCodeScanFailed,
			fmt.Errorf("failed to resolve root %s: %w", root, err))
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, pingerr.Wrap(pingerr.ErrCodeScanFailed, err)
	}
	if !info.IsDir() {
		return nil, pingerr.InvalidInput(fmt.Sprintf("root is not a directory: %s", absRoot))
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ignores := gitignore.NewMatcher()

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != absRoot {
				if ignoredDirs[name] || ignores.Match(rel, true) {
					return filepath.SkipDir
				}
			}
			// Nested .gitignore patterns scope to their directory.
			// WalkDir enters a directory before its children, so the
			// patterns are in place for everything beneath it.
			gi := filepath.Join(path, ".gitignore")
			if _, statErr := os.Stat(gi); statErr == nil {
				base := rel
				if path == absRoot {
					base = ""
				}
				if addErr := ignores.AddFile(gi, base); addErr != nil {
					slog.Warn("skipping unreadable gitignore",
						slog.String("path", gi), slog.String("error", addErr.Error()))
				}
			}
			return nil
		}
		if ignoredFiles[name] || ignores.Match(rel, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		if fi.Size() > maxSize {
			slog.Debug("skipping oversized file",
				slog.String("path", path), slog.Int64("size", fi.Size()))
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, pingerr.Wrap(pingerr.ErrCodeScanFailed, err)
	}

	files := make([]ManifestFile, len(paths))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(absRoot, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", rel, err)
			}
			sum := sha256.Sum256(data)
			mu.Lock()
			files[i] = ManifestFile{
				Path:   rel,
				SHA256: hex.EncodeToString(sum[:]),
				Size:   int64(len(data)),
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pingerr.Wrap(pingerr.ErrCodeScanFailed, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Manifest{
		ProjectID:   ProjectID(absRoot),
		Root:        absRoot,
		TreeHash:    treeHash(files),
		Files:       files,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func treeHash(files []ManifestFile) string {
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = fmt.Sprintf("%s|%s|%d", f.Path, f.SHA256, f.Size)
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
