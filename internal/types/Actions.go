package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// ActionKind names a state-changing call against the staking, token or faucet contract.
type ActionKind string

const (
	ActionApprove       ActionKind = "APPROVE"
	ActionStake         ActionKind = "STAKE"
	ActionWithdraw      ActionKind = "WITHDRAW"
	ActionEarlyWithdraw ActionKind = "EARLY_WITHDRAW"
	ActionClaim         ActionKind = "CLAIM"
	ActionExit          ActionKind = "EXIT"
	ActionFaucetClaim   ActionKind = "FAUCET_CLAIM"
)

// PendingLabel is the text shown while an action of this kind is in flight.
func (k ActionKind) PendingLabel() string {
	switch k {
	case ActionApprove:
		return "Approving..."
	case ActionStake:
		return "Staking..."
	case ActionWithdraw:
		return "Withdrawing..."
	case ActionEarlyWithdraw:
		return "Early withdrawing..."
	case ActionClaim, ActionFaucetClaim:
		return "Claiming..."
	case ActionExit:
		return "Exiting..."
	default:
		return "Working..."
	}
}

// ActionPhase is the dispatcher state for the action in flight.
type ActionPhase string

const (
	PhaseIdle             ActionPhase = "IDLE"
	PhaseAwaitingApproval ActionPhase = "AWAITING_APPROVAL"
	PhaseSubmitting       ActionPhase = "SUBMITTING"
	PhaseConfirming       ActionPhase = "CONFIRMING"
)

// PendingAction is the single in-flight action of a dashboard session.
type PendingAction struct {
	Label  string      `json:"label"`
	PoolID PoolID      `json:"pool_id"`
	Kind   ActionKind  `json:"kind"`
	Phase  ActionPhase `json:"phase"`
}

// ActionResult describes a confirmed action.
type ActionResult struct {
	Kind        ActionKind   `json:"kind"`
	PoolID      PoolID       `json:"pool_id"`
	Amount      sdkmath.Int  `json:"amount"`
	ApprovalTx  *common.Hash `json:"approval_tx,omitempty"`
	TxHash      common.Hash  `json:"tx_hash"`
	BlockNumber uint64       `json:"block_number"`
	GasUsed     uint64       `json:"gas_used"`
}

// ActionReceipt is the persisted record of an attempted action.
type ActionReceipt struct {
	ReceiptID int64      `json:"receipt_id,omitempty"` // Auto-incremented by DB
	Timestamp time.Time  `json:"timestamp"`
	Kind      ActionKind `json:"kind"`
	PoolID    PoolID     `json:"pool_id"`
	Account   string     `json:"account"`
	Amount    string     `json:"amount,omitempty"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
}
