package domain

type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "PENDING"
	SettlementProcessing SettlementStatus = "PROCESSING"
	SettlementCompleted  SettlementStatus = "COMPLETED"
	SettlementFailed     SettlementStatus = "FAILED"
	SettlementCancelled  SettlementStatus = "CANCELLED"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

type Category string

const (
	CategorySale       Category = "SALE"
	CategoryCommission Category = "COMMISSION"
	CategoryFee        Category = "FEE"
	CategoryTax        Category = "TAX"
	CategoryRefund     Category = "REFUND"
	CategorySettlement Category = "SETTLEMENT"
	CategoryAdjustment Category = "ADJUSTMENT"
)

func (c Category) Valid() bool {
	switch c {
	case CategorySale, CategoryCommission, CategoryFee, CategoryTax,
		CategoryRefund, CategorySettlement, CategoryAdjustment:
		return true
	}
	return false
}

// WalletOperation names a single atomic wallet mutation.
type WalletOperation string

const (
	OpCredit          WalletOperation = "CREDIT"
	OpCreditPending   WalletOperation = "CREDIT_PENDING"
	OpDebit           WalletOperation = "DEBIT"
	OpReserve         WalletOperation = "RESERVE"
	OpRelease         WalletOperation = "RELEASE"
	OpMoveToAvailable WalletOperation = "MOVE_TO_AVAILABLE"
	OpSettleReserved  WalletOperation = "SETTLE_RESERVED"
)

// Bucket is the wallet balance a transaction's before/after values refer to.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
	BucketReserved  Bucket = "reserved"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

const JobTypeBulkSettlement = "BULK_SETTLEMENT"

const (
	SellerStatusActive    = "ACTIVE"
	SellerStatusSuspended = "SUSPENDED"
	SellerStatusClosed    = "CLOSED"
)

const (
	KYCPending  = "PENDING"
	KYCVerified = "VERIFIED"
	KYCRejected = "REJECTED"
)

const (
	RoleAdmin   = "ADMIN"
	RoleFinance = "FINANCE"
	RoleSeller  = "SELLER"
)

// Actors recorded for work not triggered by an authenticated user.
const (
	ActorSystem        = "system"
	ActorPendingSweep  = "scheduler:pending-sweep"
	ActorRetrySweep    = "scheduler:retry-sweep"
	ActorPayoutWorker  = "worker:payout"
	ActorPayoutWebhook = "gateway:webhook"
)
