package aptoswallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const (
	OctasPerAPT           = 100_000_000
	defaultConfirmTimeout = 60 * time.Second
)

var ErrFaucetUnavailable = errors.New("faucet only available on testnet/devnet")

// Wallet signs with the injected identity and implements the transfer,
// raw submission and wallet ports on top of a Chain.
type Wallet struct {
	chain          Chain
	network        domain.AptosNetwork
	ephemeral      bool
	confirmTimeout time.Duration
	logger         *slog.Logger
}

func NewWallet(chain Chain, cfg domain.AptosConfig, ephemeral bool, logger *slog.Logger) *Wallet {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}

	network := cfg.Network
	if network == "" {
		network = domain.AptosTestnet
	}

	return &Wallet{
		chain:          chain,
		network:        network,
		ephemeral:      ephemeral,
		confirmTimeout: timeout,
		logger:         logger.With("component", "aptos-wallet", "network", network),
	}
}

// ToOctas converts an APT amount to octas, truncating fractions of an octa.
// It reports false for amounts that round to zero octas or do not fit in a
// uint64.
func ToOctas(amount float64) (uint64, bool) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	octas := math.Floor(amount * OctasPerAPT)
	// float64(math.MaxUint64) rounds up to 2^64, which is already out of range.
	if octas < 1 || octas >= math.MaxUint64 {
		return 0, false
	}
	return uint64(octas), true
}

func (w *Wallet) Transfer(ctx context.Context, req ports.TransferRequest) domain.TxResult {
	if req.RecipientAddress == "" {
		return domain.TxResult{Error: "Recipient address is required"}
	}

	octas, ok := ToOctas(req.Amount)
	if !ok {
		return domain.TxResult{Error: "Valid amount is required"}
	}

	hash, err := w.SubmitTransfer(ctx, req.RecipientAddress, octas)
	if err != nil {
		return domain.TxResult{TransactionHash: hash, Error: err.Error()}
	}
	return domain.TxResult{Success: true, TransactionHash: hash}
}

// SubmitTransfer submits and waits for confirmation. A transaction that
// lands but fails on-chain returns its hash together with the error.
func (w *Wallet) SubmitTransfer(ctx context.Context, recipient string, octas uint64) (string, error) {
	hash, err := await(ctx, func() (string, error) {
		return w.chain.SubmitTransfer(recipient, octas)
	})
	if err != nil {
		w.logger.Warn("transfer submission failed",
			"recipient", recipient,
			"octas", octas,
			"error", err.Error())
		return "", err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, w.confirmTimeout)
	defer cancel()

	confirmation, err := await(confirmCtx, func() (Confirmation, error) {
		return w.chain.WaitForTransaction(hash)
	})
	if err != nil {
		w.logger.Warn("transfer confirmation failed", "tx_hash", hash, "error", err.Error())
		return hash, fmt.Errorf("waiting for transaction %s: %w", hash, err)
	}
	if !confirmation.Success {
		w.logger.Warn("transfer failed on-chain", "tx_hash", hash, "vm_status", confirmation.VMStatus)
		return hash, domain.NewSubmissionError("Transaction failed on-chain", errors.New(confirmation.VMStatus))
	}

	w.logger.Info("transfer confirmed", "tx_hash", hash, "recipient", recipient, "octas", octas)
	return hash, nil
}

func (w *Wallet) Info(ctx context.Context) (ports.WalletInfo, error) {
	info := ports.WalletInfo{
		Address:   w.chain.Address(),
		Network:   string(w.network),
		Ephemeral: w.ephemeral,
	}

	balance, err := await(ctx, func() (uint64, error) {
		return w.chain.Balance(info.Address)
	})
	if err != nil {
		return info, fmt.Errorf("fetching balance: %w", err)
	}
	info.Balance = balance
	return info, nil
}

func (w *Wallet) Fund(ctx context.Context, octas uint64) error {
	if w.network != domain.AptosTestnet && w.network != domain.AptosDevnet {
		return ErrFaucetUnavailable
	}

	address := w.chain.Address()
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, w.chain.Fund(address, octas)
	})
	if err != nil {
		w.logger.Error("faucet funding failed", "address", address, "error", err.Error())
		return err
	}

	w.logger.Info("funded execution account", "address", address, "octas", octas)
	return nil
}

// await runs a blocking call and gives up when ctx ends. The call itself
// keeps running in the background because the SDK cannot be interrupted.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		value, err := fn()
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case o := <-done:
		return o.value, o.err
	}
}

var (
	_ ports.TransferPort = (*Wallet)(nil)
	_ ports.Submitter    = (*Wallet)(nil)
	_ ports.WalletPort   = (*Wallet)(nil)
)
