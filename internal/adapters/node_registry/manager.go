package node_registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// Manager maps each node type to the single handler that executes it.
type Manager struct {
	handlers map[domain.NodeType]ports.NodeHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		handlers: make(map[domain.NodeType]ports.NodeHandler),
		logger:   logger.With("component", "node-registry"),
	}
}

func (r *Manager) Register(handler ports.NodeHandler) error {
	if handler == nil {
		r.logger.Error("attempted to register nil handler")
		return &ports.NodeRegistrationError{
			NodeType: "<nil>",
			Reason:   "handler cannot be nil",
		}
	}

	nodeType := handler.NodeType()
	if nodeType == "" {
		return &ports.NodeRegistrationError{
			NodeType: string(nodeType),
			Reason:   "node type cannot be empty",
		}
	}
	if !nodeType.IsKnown() {
		return &ports.NodeRegistrationError{
			NodeType: string(nodeType),
			Reason:   "node type is not part of the workflow model",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[nodeType]; exists {
		r.logger.Debug("handler registration failed - already exists", "node_type", nodeType)
		return &ports.NodeRegistrationError{
			NodeType: string(nodeType),
			Reason:   "handler already registered",
		}
	}

	r.handlers[nodeType] = handler
	r.logger.Debug("handler registered", "node_type", nodeType, "total_handlers", len(r.handlers))
	return nil
}

func (r *Manager) MustRegister(handler ports.NodeHandler) {
	if err := r.Register(handler); err != nil {
		panic(fmt.Sprintf("node registry: %v", err))
	}
}

func (r *Manager) Get(nodeType domain.NodeType) (ports.NodeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[nodeType]
	if !exists {
		return nil, domain.NewNotFoundError("node handler", string(nodeType))
	}
	return handler, nil
}

func (r *Manager) Has(nodeType domain.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.handlers[nodeType]
	return exists
}

func (r *Manager) List() []domain.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.NodeType, 0, len(r.handlers))
	for nodeType := range r.handlers {
		types = append(types, nodeType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Manager) Unregister(nodeType domain.NodeType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[nodeType]; !exists {
		r.logger.Debug("handler unregistration failed - not found", "node_type", nodeType)
		return domain.NewNotFoundError("node handler", string(nodeType))
	}

	delete(r.handlers, nodeType)
	r.logger.Debug("handler unregistered", "node_type", nodeType, "remaining_handlers", len(r.handlers))
	return nil
}

func (r *Manager) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Missing lists the node types in the model that have no handler yet.
func (r *Manager) Missing() []domain.NodeType {
	var missing []domain.NodeType
	for _, nodeType := range append(domain.TriggerTypes(), domain.ActionTypes()...) {
		if !r.Has(nodeType) {
			missing = append(missing, nodeType)
		}
	}
	return missing
}

var _ ports.NodeRegistryPort = (*Manager)(nil)
