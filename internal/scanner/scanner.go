// Package scanner finds C source files under a directory tree. It honours
// .flowcignore files with gitignore-style patterns, nested ones included.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one discovered source file.
type File struct {
	Path     string // relative to the scan root, slash-separated
	FullPath string
	Size     int64
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	Extensions      []string // Source extensions, lower case with the dot
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file (default: .flowcignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		Extensions:     []string{".c"},
		IgnoreFileName: ".flowcignore",
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"build",
			"dist",
			"vendor",
			"node_modules",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = DefaultOptions().IgnoreFileName
	}
	return &Scanner{opts: opts}
}

type scopedRules struct {
	dir   string // slash-separated, relative to the root; "" for the root
	rules Rules
}

// Scan returns the source files under root sorted by path. A root that is
// itself a file is returned alone when it has a source extension.
func (s *Scanner) Scan(root string) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !s.isSource(absRoot) {
			return nil, fmt.Errorf("%s is not a source file", root)
		}
		return []File{{Path: filepath.Base(absRoot), FullPath: absRoot, Size: info.Size()}}, nil
	}

	var (
		files  []File
		scopes []scopedRules
	)

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == absRoot {
				return walkErr
			}
			// unreadable entries are skipped
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel == "." {
			rules, err := s.loadRules(p)
			if err != nil {
				return err
			}
			scopes = append(scopes, scopedRules{rules: rules})
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || ignored(scopes, rel, true) {
				return filepath.SkipDir
			}
			rules, err := s.loadRules(p)
			if err != nil {
				return err
			}
			if len(rules) > 0 {
				scopes = append(scopes, scopedRules{dir: rel, rules: rules})
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.isSource(p) || ignored(scopes, rel, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, File{Path: rel, FullPath: p, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ignored evaluates every ignore file whose directory contains rel, outer
// files first, so deeper files override shallower ones.
func ignored(scopes []scopedRules, rel string, isDir bool) bool {
	result := false
	for _, sc := range scopes {
		sub := rel
		if sc.dir != "" {
			if !strings.HasPrefix(rel, sc.dir+"/") {
				continue
			}
			sub = strings.TrimPrefix(rel, sc.dir+"/")
		}
		for _, r := range sc.rules {
			if r.Match(sub, isDir) {
				result = !r.Negated()
			}
		}
	}
	return result
}

func (s *Scanner) isSource(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range s.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

func (s *Scanner) loadRules(dir string) (Rules, error) {
	f, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading ignore file: %w", err)
	}
	defer f.Close()
	return ParseRules(f)
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]File, error) {
	return New(DefaultOptions()).Scan(root)
}
