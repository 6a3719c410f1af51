package models

import "time"

type Partner struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Platform struct {
	ID            string    `db:"id" json:"id"`
	ExternalID    string    `db:"external_id" json:"external_id"`
	Name          string    `db:"name" json:"name"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	MinDeposit    int64     `db:"min_deposit" json:"min_deposit"`
	MaxDeposit    int64     `db:"max_deposit" json:"max_deposit"`
	MinWithdrawal int64     `db:"min_withdrawal" json:"min_withdrawal"`
	MaxWithdrawal int64     `db:"max_withdrawal" json:"max_withdrawal"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type Permission struct {
	ID          string    `db:"id" json:"id"`
	PartnerID   string    `db:"partner_id" json:"partner_id"`
	PlatformID  string    `db:"platform_id" json:"platform_id"`
	CanDeposit  bool      `db:"can_deposit" json:"can_deposit"`
	CanWithdraw bool      `db:"can_withdraw" json:"can_withdraw"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	GrantedBy   string    `db:"granted_by" json:"granted_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type CommissionConfig struct {
	PartnerID      string    `db:"partner_id" json:"partner_id"`
	DepositRate    string    `db:"deposit_rate" json:"deposit_rate"`
	WithdrawalRate string    `db:"withdrawal_rate" json:"withdrawal_rate"`
	UpdatedBy      string    `db:"updated_by" json:"updated_by"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type Transaction struct {
	ID                string     `db:"id" json:"id"`
	Reference         string     `db:"reference" json:"reference"`
	PartnerID         string     `db:"partner_id" json:"partner_id"`
	PlatformID        string     `db:"platform_id" json:"platform_id"`
	Type              string     `db:"type" json:"type"`
	Status            string     `db:"status" json:"status"`
	PreviousStatus    *string    `db:"previous_status" json:"previous_status,omitempty"`
	Amount            int64      `db:"amount" json:"amount"`
	CommissionRate    *string    `db:"commission_rate" json:"commission_rate,omitempty"`
	CommissionAmount  int64      `db:"commission_amount" json:"commission_amount"`
	CommissionAccrued bool       `db:"commission_accrued" json:"commission_accrued"`
	CommissionPaid    bool       `db:"commission_paid" json:"commission_paid"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	ExternalID        *string    `db:"external_id" json:"external_id,omitempty"`
	FailureReason     *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

type CommissionPayout struct {
	ID             string    `db:"id" json:"id"`
	PartnerID      string    `db:"partner_id" json:"partner_id"`
	TransactionIDs []string  `db:"-" json:"transaction_ids"`
	TotalAmount    int64     `db:"total_amount" json:"total_amount"`
	AdminNotes     string    `db:"admin_notes" json:"admin_notes"`
	PaidBy         string    `db:"paid_by" json:"paid_by"`
	PaidAt         time.Time `db:"paid_at" json:"paid_at"`
}

type AccountEntry struct {
	ID        string    `db:"id" json:"id"`
	PartnerID string    `db:"partner_id" json:"partner_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Reference string    `db:"reference" json:"reference"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
