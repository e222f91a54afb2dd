package tool

import (
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Registry holds the tools available to a session.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	workDir string
}

// NewRegistry creates a registry rooted at workDir.
func NewRegistry(workDir string) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		workDir: workDir,
	}
}

// WorkDir returns the registry's working directory.
func (r *Registry) WorkDir() string { return r.workDir }

// Register adds a tool, replacing any prior tool with the same id.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
}

// Get looks up a tool by id.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all tools sorted by id.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID() < tools[j].ID() })
	return tools
}

// IDs returns all tool ids sorted.
func (r *Registry) IDs() []string {
	tools := r.List()
	ids := make([]string, len(tools))
	for i, t := range tools {
		ids[i] = t.ID()
	}
	return ids
}

// ToolInfos returns the Eino tool definitions for a completion request,
// restricted to enabled tools. A nil enabled map means everything is
// enabled.
func (r *Registry) ToolInfos(enabled map[string]bool) []*schema.ToolInfo {
	var infos []*schema.ToolInfo
	for _, t := range r.List() {
		if enabled != nil {
			if on, ok := enabled[t.ID()]; ok && !on {
				continue
			}
		}
		infos = append(infos, ToolInfo(t))
	}
	return infos
}

// RegisterDefaults populates the registry with the built-in tools.
func (r *Registry) RegisterDefaults() {
	r.Register(NewBashTool(r.workDir))
	r.Register(NewReadTool(r.workDir))
	r.Register(NewWriteTool(r.workDir))
	r.Register(NewGlobTool(r.workDir))
	r.Register(NewGrepTool(r.workDir))
}
