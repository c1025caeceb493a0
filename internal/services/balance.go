package services

import (
	"github.com/shopspring/decimal"

	"github.com/ffgcu/backend/internal/models"
)

// BalanceProjection is the member-facing view of a deposit. Current reflects
// funds in flight or settled; Available reflects withdrawable funds only.
type BalanceProjection struct {
	Available decimal.Decimal `json:"available"`
	Current   decimal.Decimal `json:"current"`
}

// ProjectBalances derives display balances from the deposit status. Pure,
// nothing persisted.
func ProjectBalances(status models.DepositStatus, grantAmount decimal.Decimal) BalanceProjection {
	p := BalanceProjection{Available: decimal.Zero, Current: decimal.Zero}
	switch status {
	case models.DepositPosted:
		p.Available = grantAmount
		p.Current = grantAmount
	case models.DepositPending:
		p.Current = grantAmount
	}
	return p
}
