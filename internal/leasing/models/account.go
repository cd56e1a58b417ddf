package models

import "github.com/airalab/xcm-robobank-prototype/pkg/domain"

// Balance is a ledger account split into spendable and reserved parts.
type Balance struct {
	Account  domain.AccountID `json:"account"`
	Free     domain.Amount    `json:"free"`
	Reserved domain.Amount    `json:"reserved"`
}

// Total is free plus reserved.
func (b Balance) Total() domain.Amount {
	return b.Free + b.Reserved
}
