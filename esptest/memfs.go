package esptest

import (
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemFS is the in-memory filesystem of a Device. Paths are absolute and
// slash separated; "/" always exists.
type MemFS struct {
	mu    sync.Mutex
	nodes map[string]*node
	calls []string
}

type node struct {
	dir  bool
	data []byte
}

// NewMemFS returns a filesystem holding only the root directory.
func NewMemFS() *MemFS {
	return &MemFS{nodes: map[string]*node{"/": {dir: true}}}
}

// WriteFile stores a file, creating missing parent directories.
func (m *MemFS) WriteFile(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(path.Dir(p))
	m.nodes[p] = &node{data: append([]byte{}, data...)}
}

// MkdirAll creates a directory and its parents.
func (m *MemFS) MkdirAll(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(p)
}

// ReadFile returns a file's content and whether it exists as a file.
func (m *MemFS) ReadFile(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[p]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte{}, n.data...), true
}

// IsDir reports whether p is a directory.
func (m *MemFS) IsDir(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[p]
	return ok && n.dir
}

// Paths returns every path except the root, sorted.
func (m *MemFS) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for p := range m.nodes {
		if p != "/" {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Calls returns the helper names invoked so far, in order.
func (m *MemFS) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemFS) mkdirAll(p string) {
	for p != "/" {
		if _, ok := m.nodes[p]; !ok {
			m.nodes[p] = &node{dir: true}
		}
		p = path.Dir(p)
	}
}

func (m *MemFS) children(dir string) []string {
	var names []string
	for p := range m.nodes {
		if p != "/" && path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

// call runs one helper statement and returns what the helper prints.
func (m *MemFS) call(line string) string {
	name, args, err := parseCall(line)
	if err != nil {
		return traceback(1, "SyntaxError: invalid syntax")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)

	p, _ := arg[string](args, 0)
	n, exists := m.nodes[p]

	switch name {
	case "_esp_stat":
		if !exists {
			return "!ENOENT\n"
		}
		if n.dir {
			return "D\t0\n"
		}
		return fmt.Sprintf("F\t%d\n", len(n.data))

	case "_esp_ls":
		if !exists {
			return "!ENOENT\n"
		}
		if !n.dir {
			return "!ENOTDIR\n"
		}
		var out strings.Builder
		for _, child := range m.children(p) {
			c := m.nodes[path.Join(p, child)]
			if c.dir {
				fmt.Fprintf(&out, "%s/\t0\n", child)
			} else {
				fmt.Fprintf(&out, "%s\t%d\n", child, len(c.data))
			}
		}
		return out.String() + "!OK\n"

	case "_esp_mkdir":
		parents, _ := arg[bool](args, 1)
		if exists {
			switch {
			case !parents:
				return "!EEXIST\n"
			case n.dir:
				return "!OK\n"
			default:
				return "!ENOTDIR\n"
			}
		}
		if !parents {
			if parent, ok := m.nodes[path.Dir(p)]; !ok || !parent.dir {
				return "!ENOENT\n"
			}
			m.nodes[p] = &node{dir: true}
			return "!OK\n"
		}
		q := ""
		for _, c := range strings.Split(p[1:], "/") {
			q += "/" + c
			existing, ok := m.nodes[q]
			if !ok {
				m.nodes[q] = &node{dir: true}
			} else if !existing.dir {
				return "!ENOTDIR\n"
			}
		}
		return "!OK\n"

	case "_esp_rmdir":
		if !exists {
			return "!ENOENT\n"
		}
		if !n.dir {
			return "!ENOTDIR\n"
		}
		if len(m.children(p)) > 0 {
			return traceback(1, "OSError: [Errno 39] ENOTEMPTY")
		}
		delete(m.nodes, p)
		return "!OK\n"

	case "_esp_rm":
		if !exists {
			return "!ENOENT\n"
		}
		if n.dir {
			return "!EISDIR\n"
		}
		delete(m.nodes, p)
		return "!OK\n"

	case "_esp_put":
		if exists && n.dir {
			return "!EISDIR\n"
		}
		if parent, ok := m.nodes[path.Dir(p)]; !ok || !parent.dir {
			return "!ENOENT\n"
		}
		appendTo, _ := arg[bool](args, 1)
		payload, _ := arg[string](args, 2)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return traceback(1, "ValueError: incorrect padding")
		}
		if !exists || !appendTo {
			n = &node{}
			m.nodes[p] = n
		}
		n.data = append(n.data, data...)
		return fmt.Sprintf("%d\n", len(data))

	case "_esp_get":
		if !exists {
			return "!ENOENT\n"
		}
		if n.dir {
			return "!EISDIR\n"
		}
		offset, _ := arg[int](args, 1)
		count, _ := arg[int](args, 2)
		start := min(offset, len(n.data))
		end := min(start+count, len(n.data))
		return base64.StdEncoding.EncodeToString(n.data[start:end]) + "\n"
	}

	return traceback(1, "NameError: name '"+name+"' isn't defined")
}

func arg[T any](args []any, i int) (T, bool) {
	var zero T
	if i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(T)
	return v, ok
}
