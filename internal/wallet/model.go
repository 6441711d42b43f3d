package wallet

import "time"

const (
	TxTopUp              = "topup"
	TxDropInPayment      = "drop_in_payment"
	TxDropInRefund       = "drop_in_refund"
	TxClassPackPurchase  = "class_pack_purchase"
	TxMembershipPurchase = "membership_purchase"
)

type Wallet struct {
	ID           int       `db:"id" json:"id"`
	MemberID     int       `db:"member_id" json:"member_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an append-only ledger entry. Debits carry negative amounts.
type Transaction struct {
	ID           int       `db:"id" json:"id"`
	WalletID     int       `db:"wallet_id" json:"wallet_id"`
	AmountCents  int64     `db:"amount_cents" json:"amount_cents"`
	Type         string    `db:"type" json:"type"`
	Reference    string    `db:"reference" json:"reference"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type TopUpRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

type TopUpResponse struct {
	Message string  `json:"message"`
	Wallet  *Wallet `json:"wallet"`
}
