package domain

import (
	"strings"

	json "github.com/goccy/go-json"
)

type NodeType string

const (
	NodeTypePriceTrigger     NodeType = "priceTrigger"
	NodeTypeSchedule         NodeType = "schedule"
	NodeTypeWebhookTrigger   NodeType = "webhookTrigger"
	NodeTypeQRPaymentTrigger NodeType = "qrPaymentTrigger"

	NodeTypeAptosTransfer    NodeType = "aptosTransfer"
	NodeTypeDecibelTrade     NodeType = "decibelTrade"
	NodeTypePhotonReward     NodeType = "photonReward"
	NodeTypeConditionalLogic NodeType = "conditionalLogic"
)

var triggerTypes = map[NodeType]struct{}{
	NodeTypePriceTrigger:     {},
	NodeTypeSchedule:         {},
	NodeTypeWebhookTrigger:   {},
	NodeTypeQRPaymentTrigger: {},
}

var actionTypes = map[NodeType]struct{}{
	NodeTypeAptosTransfer:    {},
	NodeTypeDecibelTrade:     {},
	NodeTypePhotonReward:     {},
	NodeTypeConditionalLogic: {},
}

// IsTrigger reports whether nodes of this type mark a run's entry point.
func (t NodeType) IsTrigger() bool {
	_, ok := triggerTypes[t]
	return ok
}

func (t NodeType) IsAction() bool {
	_, ok := actionTypes[t]
	return ok
}

func (t NodeType) IsKnown() bool {
	return t.IsTrigger() || t.IsAction()
}

func TriggerTypes() []NodeType {
	return []NodeType{NodeTypePriceTrigger, NodeTypeSchedule, NodeTypeWebhookTrigger, NodeTypeQRPaymentTrigger}
}

func ActionTypes() []NodeType {
	return []NodeType{NodeTypeAptosTransfer, NodeTypeDecibelTrade, NodeTypePhotonReward, NodeTypeConditionalLogic}
}

type Node struct {
	ID     string                 `json:"id"`
	Type   NodeType               `json:"type"`
	Label  string                 `json:"label"`
	Config map[string]interface{} `json:"config"`
}

// DisplayName is the label when present, otherwise the node id.
func (n Node) DisplayName() string {
	if strings.TrimSpace(n.Label) != "" {
		return n.Label
	}
	return n.ID
}

type canvasNodeData struct {
	Label  string                 `json:"label"`
	Type   NodeType               `json:"type"`
	Config map[string]interface{} `json:"config"`
}

type canvasNode struct {
	ID     string                 `json:"id"`
	Type   NodeType               `json:"type"`
	Label  string                 `json:"label"`
	Config map[string]interface{} `json:"config"`
	Data   *canvasNodeData        `json:"data"`
}

// UnmarshalJSON accepts both the flat node shape and the canvas shape that
// nests label and config under "data".
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw canvasNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Label = raw.Label
	n.Config = raw.Config

	if raw.Data != nil {
		if raw.Data.Type != "" {
			n.Type = raw.Data.Type
		}
		if n.Label == "" {
			n.Label = raw.Data.Label
		}
		if n.Config == nil {
			n.Config = raw.Data.Config
		}
	}

	if n.Config == nil {
		n.Config = make(map[string]interface{})
	}
	return nil
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func ParseDefinition(data []byte) (*Definition, error) {
	if len(data) == 0 {
		return nil, NewConfigError("definition", ErrInvalidInput)
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, NewConfigError("definition", err)
	}
	return &def, nil
}

// FindTrigger returns the first trigger node in definition order.
func (d *Definition) FindTrigger() (Node, bool) {
	for _, node := range d.Nodes {
		if node.Type.IsTrigger() {
			return node, true
		}
	}
	return Node{}, false
}

// NodeByID is the traversal-time lookup; edges may reference ids that do
// not exist, so callers must handle the false case.
func (d *Definition) NodeByID(id string) (Node, bool) {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return Node{}, false
}

// Targets returns the targets of every edge leaving source, in edge order.
func (d *Definition) Targets(source string) []string {
	var targets []string
	for _, edge := range d.Edges {
		if edge.Source == source {
			targets = append(targets, edge.Target)
		}
	}
	return targets
}

// Validate checks structural properties only. Node configs are validated
// lazily when each node is dispatched.
func (d *Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return NewConfigError("nodes", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(d.Nodes))
	for _, node := range d.Nodes {
		if node.ID == "" {
			return NewConfigError("nodes.id", ErrInvalidInput)
		}
		if _, dup := seen[node.ID]; dup {
			return NewConfigError("nodes.id", &Error{
				Type:    ErrorTypeConfiguration,
				Message: "duplicate node id",
				Details: map[string]interface{}{"node_id": node.ID},
			})
		}
		seen[node.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep enough copy that the engine can hold it for a run
// while the caller keeps mutating its own.
func (d *Definition) Clone() *Definition {
	out := &Definition{
		Nodes: make([]Node, len(d.Nodes)),
		Edges: make([]Edge, len(d.Edges)),
	}
	for i, node := range d.Nodes {
		cfg := make(map[string]interface{}, len(node.Config))
		for k, v := range node.Config {
			cfg[k] = v
		}
		node.Config = cfg
		out.Nodes[i] = node
	}
	copy(out.Edges, d.Edges)
	return out
}

type Workflow struct {
	ID         string      `json:"id" db:"id"`
	Name       string      `json:"name" db:"name"`
	Definition *Definition `json:"json_definition" db:"-"`
	IsActive   bool        `json:"is_active" db:"is_active"`
}
