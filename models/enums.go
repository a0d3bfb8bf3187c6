package models

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	// PaymentMethodMixed is only ever a resolved invoice value, never a ledger row method.
	PaymentMethodMixed PaymentMethod = "mixed"
)

// LedgerMethods is the fixed method order used for reports and allocation tie-breaks.
var LedgerMethods = []PaymentMethod{PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

func (m PaymentMethod) order() int {
	for i, v := range LedgerMethods {
		if v == m {
			return i
		}
	}
	return len(LedgerMethods)
}

type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "payment"
	PaymentKindRefund  PaymentKind = "refund"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

type CashSessionStatus string

const (
	CashSessionStatusOpen   CashSessionStatus = "open"
	CashSessionStatusClosed CashSessionStatus = "closed"
)

type CashTransactionType string

const (
	CashTransactionTypeIn  CashTransactionType = "in"
	CashTransactionTypeOut CashTransactionType = "out"
)

func (t CashTransactionType) IsValid() bool {
	return t == CashTransactionTypeIn || t == CashTransactionTypeOut
}

// SettlementReferenceType tags outbox events.
type SettlementReferenceType string

const (
	SettlementReferenceTypeInvoicePayment  SettlementReferenceType = "IVP"
	SettlementReferenceTypeInvoiceRefund   SettlementReferenceType = "IVF"
	SettlementReferenceTypeInvoiceStatus   SettlementReferenceType = "IVS"
	SettlementReferenceTypeInvoiceCancel   SettlementReferenceType = "IVC"
	SettlementReferenceTypeSessionOpen     SettlementReferenceType = "CSO"
	SettlementReferenceTypeSessionClose    SettlementReferenceType = "CSC"
	SettlementReferenceTypeCashTransaction SettlementReferenceType = "CTX"
)

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
)
