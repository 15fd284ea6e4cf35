package aptoswallet

import (
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk"

	"github.com/eleven-am/chainflow/internal/domain"
)

type Confirmation struct {
	Success  bool
	VMStatus string
}

// Chain is the slice of the node API the wallet needs. The SDK calls are
// blocking and take no context.
type Chain interface {
	Address() string
	SubmitTransfer(recipient string, octas uint64) (string, error)
	WaitForTransaction(hash string) (Confirmation, error)
	Balance(address string) (uint64, error)
	Fund(address string, octas uint64) error
}

// SDKChain talks to a fullnode through the official Go SDK.
type SDKChain struct {
	client  *aptos.Client
	account *aptos.Account
}

func networkConfig(cfg domain.AptosConfig) (aptos.NetworkConfig, error) {
	var network aptos.NetworkConfig
	switch cfg.Network {
	case domain.AptosMainnet:
		network = aptos.MainnetConfig
	case domain.AptosTestnet, "":
		network = aptos.TestnetConfig
	case domain.AptosDevnet:
		network = aptos.DevnetConfig
	case domain.AptosLocalnet:
		network = aptos.LocalnetConfig
	default:
		return network, domain.NewConfigError("aptos.network", fmt.Errorf("unknown network %q", cfg.Network))
	}

	if cfg.NodeURL != "" {
		network.NodeUrl = cfg.NodeURL
	}
	return network, nil
}

func NewSDKChain(cfg domain.AptosConfig, signer *Signer) (*SDKChain, error) {
	network, err := networkConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := aptos.NewClient(network)
	if err != nil {
		return nil, domain.NewInternalError("failed to create aptos client", err)
	}

	account, err := aptos.NewAccountFromSigner(signer.Key)
	if err != nil {
		return nil, domain.NewInternalError("failed to derive account from signing key", err)
	}

	return &SDKChain{client: client, account: account}, nil
}

func (c *SDKChain) Address() string {
	return c.account.Address.String()
}

func (c *SDKChain) SubmitTransfer(recipient string, octas uint64) (string, error) {
	var dest aptos.AccountAddress
	if err := dest.ParseStringRelaxed(recipient); err != nil {
		return "", fmt.Errorf("invalid recipient address %q: %w", recipient, err)
	}

	payload, err := aptos.CoinTransferPayload(nil, dest, octas)
	if err != nil {
		return "", err
	}

	submitted, err := c.client.BuildSignAndSubmitTransaction(c.account, aptos.TransactionPayload{Payload: payload})
	if err != nil {
		return "", err
	}
	return submitted.Hash, nil
}

func (c *SDKChain) WaitForTransaction(hash string) (Confirmation, error) {
	txn, err := c.client.WaitForTransaction(hash)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Success: txn.Success, VMStatus: txn.VmStatus}, nil
}

func (c *SDKChain) Balance(address string) (uint64, error) {
	var addr aptos.AccountAddress
	if err := addr.ParseStringRelaxed(address); err != nil {
		return 0, err
	}
	return c.client.AccountAPTBalance(addr)
}

func (c *SDKChain) Fund(address string, octas uint64) error {
	var addr aptos.AccountAddress
	if err := addr.ParseStringRelaxed(address); err != nil {
		return err
	}
	return c.client.Fund(addr, octas)
}
