package deadman

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the derived recovery view served to clients. Executable is
// not a stored transition: it is true exactly when a triggered session
// has outlived its delay.
type Status struct {
	Triggered             bool   `json:"triggered"`
	TriggeredAt           uint64 `json:"triggeredAt,omitempty"`
	ExecutionTime         uint64 `json:"executionTime,omitempty"`
	CanExecute            bool   `json:"canExecute"`
	TimeRemaining         uint64 `json:"timeRemaining"`
	DelaySeconds          uint64 `json:"delaySeconds"`
	WithdrawAddress       string `json:"withdrawAddress,omitempty"`
	LastActivityTimestamp uint64 `json:"lastActivityTimestamp"`
}

// Status reads the live recovery state of a wallet.
func (s *Service) Status(ctx context.Context, walletAddr common.Address) (*Status, error) {
	triggeredAt, err := s.reader.DeadmanTriggeredAt(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read trigger state: %w", err)
	}
	delay, err := s.reader.DeadmanDelay(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read delay: %w", err)
	}
	withdraw, err := s.reader.WithdrawAddress(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read withdraw address: %w", err)
	}
	lastActivity, err := s.reader.LastActivityTimestamp(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read last activity: %w", err)
	}

	st := &Status{
		Triggered:             triggeredAt != 0,
		TriggeredAt:           triggeredAt,
		DelaySeconds:          delay,
		LastActivityTimestamp: lastActivity,
	}
	if withdraw != (common.Address{}) {
		st.WithdrawAddress = MaskAddress(withdraw)
	}
	if triggeredAt != 0 {
		st.ExecutionTime = triggeredAt + delay
		if now := uint64(s.now().Unix()); now >= st.ExecutionTime {
			st.CanExecute = true
		} else {
			st.TimeRemaining = st.ExecutionTime - now
		}
	}
	return st, nil
}

// MaskAddress keeps enough of an address for a user to recognize it
// without the status endpoint disclosing the full recovery target.
func MaskAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}
