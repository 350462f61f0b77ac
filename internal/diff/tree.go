package diff

import (
	"sort"
	"strings"

	"github.com/starford/commitbook/internal/models"
)

// NodeKind tags a tree Node as a folder or a file.
type NodeKind string

// Node kinds.
const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// Node is one entry of a snapshot's folder tree. Folders carry Children,
// ordered folders first and then files, each group by name. Files carry the
// path and binary flag of their FileNode.
type Node struct {
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	IsBinary bool     `json:"isBinary,omitempty"`
	Changed  bool     `json:"changed,omitempty"`
	Children []*Node  `json:"children,omitempty"`

	byName map[string]*Node
}

// Child returns the direct child called name, or nil.
func (n *Node) Child(name string) *Node {
	if n.byName == nil {
		return nil
	}
	return n.byName[name]
}

// Find returns the node at the slash-separated path below n, or nil.
func (n *Node) Find(path string) *Node {
	cur := n
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if cur = cur.Child(seg); cur == nil {
			return nil
		}
	}
	return cur
}

// Walk calls fn for every file below n in display order.
func (n *Node) Walk(fn func(*Node)) {
	if n.Kind == KindFile {
		fn(n)
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

func newFolder(name, path string) *Node {
	return &Node{Kind: KindFolder, Name: name, Path: path, byName: make(map[string]*Node)}
}

// BuildTree inserts every snapshot path segment by segment under a root
// folder. Files listed in changed are flagged.
func BuildTree(nodes []models.FileNode, changed []string) *Node {
	isChanged := make(map[string]bool, len(changed))
	for _, p := range changed {
		isChanged[p] = true
	}

	root := newFolder("", "")
	for _, fn := range nodes {
		segments := strings.Split(strings.Trim(fn.Path, "/"), "/")
		dir := root
		for i, seg := range segments[:len(segments)-1] {
			next := dir.byName[seg]
			if next == nil || next.Kind != KindFolder {
				next = newFolder(seg, strings.Join(segments[:i+1], "/"))
				dir.byName[seg] = next
				dir.Children = append(dir.Children, next)
			}
			dir = next
		}
		name := segments[len(segments)-1]
		if _, exists := dir.byName[name]; exists {
			continue
		}
		leaf := &Node{
			Kind:     KindFile,
			Name:     name,
			Path:     fn.Path,
			IsBinary: fn.IsBinary,
			Changed:  isChanged[fn.Path],
		}
		dir.byName[name] = leaf
		dir.Children = append(dir.Children, leaf)
	}
	sortTree(root)
	return root
}

func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Kind != b.Kind {
			return a.Kind == KindFolder
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.Kind == KindFolder {
			sortTree(c)
		}
	}
}
