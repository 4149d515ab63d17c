package memory

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/felixgeelhaar/influx-mcp/domain/tool"
)

// ToolRegistry holds the tools the MCP server exposes. It refuses any tool
// that is not annotated read-only, so a mutating tool can never be served.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]tool.Tool
}

var _ tool.Registry = (*ToolRegistry)(nil)

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]tool.Tool)}
}

// Register adds t. It fails with tool.ErrNotReadOnly or tool.ErrToolExists.
func (r *ToolRegistry) Register(t tool.Tool) error {
	if !t.Annotations().ReadOnly {
		return fmt.Errorf("%s: %w", t.Name(), tool.ErrNotReadOnly)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("%s: %w", t.Name(), tool.ErrToolExists)
	}
	r.tools[t.Name()] = t
	return nil
}

// Get looks a tool up by name.
func (r *ToolRegistry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools ordered by name.
func (r *ToolRegistry) List() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tool.Tool, 0, len(r.tools))
	for _, name := range slices.Sorted(maps.Keys(r.tools)) {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the tool names in order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
