package reconciler

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
)

// Snapshot is the dashboard view of one session at one instant. Maps and slices are
// copies owned by the receiver. Seq grows with every published snapshot; a snapshot read
// with Snapshot carries the Seq of the last one published.
type Snapshot struct {
	Seq            uint64                `json:"seq"`
	Pools          []types.PoolRecord    `json:"pools"`
	Live           bool                  `json:"live"`
	Hint           string                `json:"hint,omitempty"`
	RewardReserve  *sdkmath.Int          `json:"reward_reserve,omitempty"`
	Connection     types.ConnectionState `json:"connection"`
	MyBalances     map[string]string     `json:"my_balances"`
	MyEarned       map[string]string     `json:"my_earned"`
	WalletBalance  *sdkmath.Int          `json:"wallet_balance,omitempty"`
	Pending        *types.PendingAction  `json:"pending,omitempty"`
	LastBlock      uint64                `json:"last_block"`
	BlockUpdates   bool                  `json:"block_updates"`
	PositionsStale bool                  `json:"positions_stale"`
	LastError      string                `json:"last_error,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:            c.seq,
		Pools:          append([]types.PoolRecord(nil), c.poolSet.Pools...),
		Live:           c.poolSet.Live,
		Hint:           c.poolSet.Hint,
		RewardReserve:  c.poolSet.RewardReserve,
		Connection:     c.conn,
		MyBalances:     c.positionsByID.Balances(),
		MyEarned:       c.positionsByID.EarnedByPool(),
		WalletBalance:  c.walletBalance,
		LastBlock:      c.lastBlock,
		BlockUpdates:   c.blocksLive,
		PositionsStale: c.stale,
		LastError:      c.lastErr,
		UpdatedAt:      c.updatedAt,
	}
	if c.pending != nil {
		p := *c.pending
		snap.Pending = &p
	}
	return snap
}

// Subscribe registers fn for every published snapshot. Snapshots arrive in Seq order.
// fn runs on the goroutine that changed the state; it must not block and must not call
// back into methods that change the session.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSubscriber
	c.nextSubscriber++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) publish() {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	c.seq++
	if len(c.subscribers) == 0 {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
