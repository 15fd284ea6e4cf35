package ports

import (
	"context"

	"github.com/eleven-am/chainflow/internal/domain"
)

// NodeRequest carries everything a handler may read while executing a node.
// Handlers must treat it as read-only.
type NodeRequest struct {
	Node    domain.Node
	Context *domain.ExecutionContext
	Input   interface{}
}

// NodeHandler executes one node type. Returning an error is equivalent to a
// failed result carrying the error text.
type NodeHandler interface {
	NodeType() domain.NodeType
	Execute(ctx context.Context, req *NodeRequest) (*domain.NodeResult, error)
}

// NodeHandlerFunc adapts a plain function to NodeHandler.
type NodeHandlerFunc struct {
	Type domain.NodeType
	Fn   func(ctx context.Context, req *NodeRequest) (*domain.NodeResult, error)
}

func (f NodeHandlerFunc) NodeType() domain.NodeType {
	return f.Type
}

func (f NodeHandlerFunc) Execute(ctx context.Context, req *NodeRequest) (*domain.NodeResult, error) {
	return f.Fn(ctx, req)
}
