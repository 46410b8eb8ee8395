package query

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Node types.
const (
	NodeFile   = "file"
	NodeFolder = "folder"
)

// FileNode is one entry of the data directory tree. Path is relative to
// the data directory and slash separated.
type FileNode struct {
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Size     int64       `json:"size,omitempty"`
	Children []*FileNode `json:"children,omitempty"`
}

// IsDataFile reports whether name has a queryable extension.
func IsDataFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".parquet", ".csv":
		return true
	}
	return false
}

// FileTree lists the csv and parquet files under root. Folders come before
// files, each group in name order. Hidden entries and folders without any
// data file are left out.
func FileTree(root string) ([]*FileNode, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", root)
	}
	nodes, err := walkTree(root, "")
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []*FileNode{}
	}
	return nodes, nil
}

func walkTree(root, rel string) ([]*FileNode, error) {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}

	var folders, files []*FileNode
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := name
		if rel != "" {
			path = rel + "/" + name
		}

		if e.IsDir() {
			children, err := walkTree(root, path)
			if err != nil {
				return nil, err
			}
			if len(children) == 0 {
				continue
			}
			folders = append(folders, &FileNode{Type: NodeFolder, Name: name, Path: path, Children: children})
			continue
		}
		if !IsDataFile(name) {
			continue
		}
		node := &FileNode{Type: NodeFile, Name: name, Path: path}
		if fi, err := e.Info(); err == nil {
			node.Size = fi.Size()
		}
		files = append(files, node)
	}

	byName := func(ns []*FileNode) {
		sort.Slice(ns, func(i, j int) bool { return ns[i].Name < ns[j].Name })
	}
	byName(folders)
	byName(files)
	return append(folders, files...), nil
}

// TreeCache memoizes FileTree for a root until invalidated or, when a TTL
// is set, until the cached tree is older than the TTL.
type TreeCache struct {
	root string
	now  func() time.Time

	mu      sync.Mutex
	nodes   []*FileNode
	valid   bool
	builtAt time.Time
	ttl     time.Duration
}

// NewTreeCache returns an empty cache for root.
func NewTreeCache(root string) *TreeCache {
	return &TreeCache{root: root, now: time.Now}
}

// SetTTL makes cached trees expire after d. Zero disables expiry.
func (c *TreeCache) SetTTL(d time.Duration) {
	c.mu.Lock()
	c.ttl = d
	c.mu.Unlock()
}

// Get returns the cached tree, rebuilding it when stale.
func (c *TreeCache) Get() ([]*FileNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && (c.ttl <= 0 || c.now().Sub(c.builtAt) < c.ttl) {
		return c.nodes, nil
	}
	nodes, err := FileTree(c.root)
	if err != nil {
		return nil, err
	}
	c.nodes, c.valid, c.builtAt = nodes, true, c.now()
	return nodes, nil
}

// Invalidate marks the cached tree stale.
func (c *TreeCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.nodes = nil
	c.mu.Unlock()
}
