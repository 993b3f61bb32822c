// Package library manages the download root on disk: the per-request
// folders, the file tree shown on the videos page and safe path resolution
// for serving files back.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/patrickmn/go-cache"
)

// ErrInvalidPath is returned for folder or file names escaping the root
var ErrInvalidPath = errors.New("invalid path")

const treeKey = "tree"

// Node is one element of the file tree. Directories have Children, files
// have a Size.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	IsDir    bool    `json:"is_dir"`
	Size     int64   `json:"size,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// HumanSize renders the file size, e.g. "12 MB"
func (n *Node) HumanSize() string {
	if n.IsDir {
		return ""
	}
	return humanize.Bytes(uint64(n.Size))
}

// Library is the download root directory.
type Library struct {
	root  string
	cache *cache.Cache
}

// New creates the root directory if needed.
func New(root string, treeTTL time.Duration) (*Library, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download folder: %w", err)
	}
	if treeTTL <= 0 {
		treeTTL = cache.NoExpiration
	}
	return &Library{
		root:  root,
		cache: cache.New(treeTTL, 10*time.Minute),
	}, nil
}

// Root returns the download root
func (l *Library) Root() string {
	return l.root
}

// Folders returns the names of existing directories directly under the root.
func (l *Library) Folders() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read download folder: %w", err)
	}

	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// Tree returns the recursive listing of the root, cached until Invalidate or
// the TTL expires.
func (l *Library) Tree() ([]*Node, error) {
	if cached, ok := l.cache.Get(treeKey); ok {
		return cached.([]*Node), nil
	}

	tree, err := walk(l.root, "")
	if err != nil {
		return nil, err
	}
	l.cache.SetDefault(treeKey, tree)
	return tree, nil
}

// Invalidate drops the cached tree.
func (l *Library) Invalidate() {
	l.cache.Delete(treeKey)
}

// Resolve maps a user supplied folder name to a directory under the root and
// creates it. An empty name maps to fallback.
func (l *Library) Resolve(folder, fallback string) (name, dir string, err error) {
	name = strings.TrimSpace(folder)
	if name == "" {
		name = fallback
	}

	rel, err := cleanRel(name)
	if err != nil {
		return "", "", err
	}

	dir = filepath.Join(l.root, rel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create folder %s: %w", rel, err)
	}
	l.Invalidate()
	return filepath.ToSlash(rel), dir, nil
}

// File resolves a relative file path under the root for serving. Only
// regular files are returned.
func (l *Library) File(relPath string) (string, error) {
	rel, err := cleanRel(relPath)
	if err != nil {
		return "", err
	}

	full := filepath.Join(l.root, rel)
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", relPath, ErrInvalidPath)
	}
	return full, nil
}

func cleanRel(p string) (string, error) {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}

	cleaned := filepath.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	return cleaned, nil
}

func walk(dir, rel string) ([]*Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		childRel := e.Name()
		if rel != "" {
			childRel = rel + "/" + e.Name()
		}

		node := &Node{Name: e.Name(), Path: childRel, IsDir: e.IsDir()}
		if e.IsDir() {
			children, err := walk(filepath.Join(dir, e.Name()), childRel)
			if err != nil {
				return nil, err
			}
			node.Children = children
		} else {
			info, err := e.Info()
			if err != nil {
				continue
			}
			node.Size = info.Size()
		}
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsDir != nodes[j].IsDir {
			return nodes[i].IsDir
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes, nil
}
