package ports

import (
	"github.com/eleven-am/chainflow/internal/domain"
)

type NodeRegistryPort interface {
	Register(handler NodeHandler) error
	MustRegister(handler NodeHandler)
	Get(nodeType domain.NodeType) (NodeHandler, error)
	Has(nodeType domain.NodeType) bool
	List() []domain.NodeType
	Unregister(nodeType domain.NodeType) error
	Count() int
}

type NodeRegistrationError struct {
	NodeType string
	Reason   string
}

func (e NodeRegistrationError) Error() string {
	return "node registration failed for '" + e.NodeType + "': " + e.Reason
}
