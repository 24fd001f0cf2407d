package scanner

import (
	"fmt"
	"sort"

	"KnowledgeScanner/internal/ports"
)

// Connector captures a single source strategy (Gmail, Jira, etc.).
type Connector interface {
	Kind() string
	ports.SourceConnector
}

// Registry keeps a mapping from connector kinds to their implementations.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

// Register adds or replaces a connector implementation.
func (r *Registry) Register(c Connector) {
	if r.connectors == nil {
		r.connectors = map[string]Connector{}
	}
	r.connectors[c.Kind()] = c
}

// Resolve returns a connector by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Connector, error) {
	if c, ok := r.connectors[kind]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("connector %s is not registered", kind)
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.connectors))
	for k := range r.connectors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
