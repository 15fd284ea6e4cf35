// Package chainflow runs no-code blockchain workflows.
//
// A workflow is a graph of trigger and action nodes. Each run starts at the
// first trigger node and walks the graph breadth-first, executing every
// reachable node at most once. Actions move APT on Aptos, settle Decibel
// swaps, emit Photon reward events, or branch on a condition. The first
// failing node ends the run.
//
// Basic usage:
//
//	cfg, err := chainflow.LoadConfig("chainflow.yaml")
//	manager, err := chainflow.New(ctx, cfg)
//	manager.Start(ctx)
//	defer manager.Stop()
//
//	def, err := chainflow.ParseDefinition(data)
//	result := manager.ExecuteWorkflow(ctx, "payout", def)
package chainflow

import (
	"context"

	"github.com/eleven-am/chainflow/internal/adapters/aptoswallet"
	"github.com/eleven-am/chainflow/internal/core"
	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// Manager owns the store, the signing wallet, the run engine and the
// trigger surfaces (scheduler and HTTP API).
type Manager = core.Manager

// Option customizes a Manager at construction time.
type Option = core.Option

// Config is the complete process configuration.
type Config = domain.Config

// Definition is the node/edge graph of a workflow.
type Definition = domain.Definition

type Node = domain.Node

type Edge = domain.Edge

type NodeType = domain.NodeType

// Workflow is a stored, named definition.
type Workflow = domain.Workflow

// Run is one execution of a definition.
type Run = domain.Run

// ExecutionRecord is the per-node record of a run.
type ExecutionRecord = domain.ExecutionRecord

// RunDetail is a run together with its execution records.
type RunDetail = domain.RunDetail

// RunResult is what trigger callers receive.
type RunResult = domain.RunResult

type RunOptions = ports.RunOptions

type TriggerType = domain.TriggerType

const (
	TriggerManual   = domain.TriggerManual
	TriggerSchedule = domain.TriggerSchedule
	TriggerWebhook  = domain.TriggerWebhook
	TriggerTest     = domain.TriggerTest
)

// OctasPerAPT is the number of base units in one APT.
const OctasPerAPT = aptoswallet.OctasPerAPT

// Store persists workflows, runs and execution records.
type Store = ports.Store

// New builds a Manager from cfg. Nothing runs until Start is called.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Manager, error) {
	return core.NewWithConfig(ctx, cfg, opts...)
}

// WithStore replaces the store selected by cfg.Store.
func WithStore(store Store) Option {
	return core.WithStore(store)
}

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// ParseDefinition decodes a definition in either the flat or the canvas
// node shape.
func ParseDefinition(data []byte) (*Definition, error) {
	return domain.ParseDefinition(data)
}

// GenerateKey returns a new hex encoded Ed25519 private key suitable for
// APTOS_EXECUTION_PRIVATE_KEY.
func GenerateKey() (string, error) {
	return aptoswallet.GenerateKeyHex()
}
