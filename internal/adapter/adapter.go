// Package adapter defines the uniform call contract over heterogeneous
// LLM provider APIs and the registry the orchestrator dispatches through.
package adapter

import (
	"context"
	"sync"

	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/internal/model"
)

// Capability tags what kind of citation payload an adapter can return.
// The orchestrator never branches on provider identity, only on the raw
// shapes present in the response.
type Capability string

const (
	// ChatOnly models return text with no citation payload.
	ChatOnly Capability = "chat_only"
	// ChatWithAnnotations models attach annotation-style citations.
	ChatWithAnnotations Capability = "chat_with_annotations"
	// SearchWithCitations models return search-result-style citations.
	SearchWithCitations Capability = "search_with_citations"
)

// Request is one scan prompt for one model.
type Request struct {
	SystemPrompt string
	UserQuery    string
	Temperature  float64
}

// Response is the uniform result of a model call. At most one of
// Annotations / SearchResults is populated, matching the adapter's
// capability; both empty is a valid outcome.
type Response struct {
	Text          string
	Annotations   []citation.Annotation
	SearchResults []citation.SearchResult
	InputTokens   int
	OutputTokens  int
}

// NormalizedCitations reduces whichever raw shape the response carries to
// the common citation model. ok is false when the model has no citation
// support at all, distinguishing "cannot cite" from "cited nothing".
func (r *Response) NormalizedCitations(cap Capability) (cites []model.Citation, ok bool) {
	switch cap {
	case ChatWithAnnotations:
		return citation.FromAnnotations(r.Annotations), true
	case SearchWithCitations:
		return citation.FromSearchResults(r.SearchResults), true
	default:
		return nil, false
	}
}

// Adapter is the uniform call contract over one provider model. Execute
// performs exactly one HTTP attempt with a bounded timeout; retries are
// the orchestrator's (or the step runner's) responsibility. Adapters must
// be safe for concurrent use.
type Adapter interface {
	ModelID() string
	Capability() Capability
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Registry maps model ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ModelID()] = a
}

// Get returns the adapter for a model id, or nil if not registered.
func (r *Registry) Get(modelID string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[modelID]
}

// List returns all registered model ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
