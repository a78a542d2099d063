package breaker

import (
	"fmt"

	"github.com/kyvernlabs/shield/internal/chain"
)

// Account projects the off-chain breaker record onto the on-chain account
// layout. The caller supplies the authority and agent wallet keys plus the
// agent's limit configuration; breaker state and counters come from the
// record.
func (r *Record) Account(authority, wallet [chain.PubkeySize]byte, cfg chain.Config, allowed, blocked [][chain.PubkeySize]byte) (*chain.ShieldAccount, error) {
	if len(allowed) > chain.MaxPrograms || len(blocked) > chain.MaxPrograms {
		return nil, fmt.Errorf("build shield account: %w", chain.ErrTooManyPrograms)
	}
	acc := &chain.ShieldAccount{
		Authority:           authority,
		AgentWallet:         wallet,
		Config:              cfg,
		AllowedPrograms:     allowed,
		BlockedPrograms:     blocked,
		State:               r.State,
		AnomalyCount:        uint8(min(len(r.AnomalyEvents), 255)),
		CreatedAt:           r.CreatedAt.Unix(),
		TotalTransactions:   r.TotalAnalyzed,
		BlockedTransactions: r.TotalBlocked,
	}
	if !r.LastTriggeredAt.IsZero() {
		acc.LastTriggeredAt = r.LastTriggeredAt.Unix()
	}
	if !r.CooldownEndsAt.IsZero() {
		acc.CooldownEndsAt = r.CooldownEndsAt.Unix()
	}
	return acc, nil
}
