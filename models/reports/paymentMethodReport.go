package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type PaymentMethodReportRow struct {
	Method         models.PaymentMethod `json:"method"`
	Received       decimal.Decimal      `json:"received"`
	Refunded       decimal.Decimal      `json:"refunded"`
	Net            decimal.Decimal      `json:"net"`
	PendingCount   int64                `json:"pending_count"`
	ConfirmedCount int64                `json:"confirmed_count"`
}

func (r PaymentMethodReportRow) GetCellValues() []interface{} {
	return []interface{}{
		string(r.Method),
		r.Received.InexactFloat64(),
		r.Refunded.InexactFloat64(),
		r.Net.InexactFloat64(),
		r.PendingCount,
		r.ConfirmedCount,
	}
}

type methodTotals struct {
	Method         string
	Received       decimal.Decimal
	Refunded       decimal.Decimal
	PendingCount   int64
	ConfirmedCount int64
}

// GetPaymentMethodReport returns one row for each of cash, card and transfer.
// The window is on the ledger row's created_at: from inclusive, to exclusive.
// Pending counts cover payment rows only.
func GetPaymentMethodReport(ctx context.Context, fromDate *time.Time, toDate *time.Time) ([]*PaymentMethodReportRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, &models.SettlementError{Kind: models.ErrUnauthorized, Message: "business id is required"}
	}
	if fromDate != nil && toDate != nil && toDate.Before(*fromDate) {
		return nil, &models.SettlementError{Kind: models.ErrInvalidInput, Message: "to must not be before from"}
	}

	db := config.GetDB()
	q := db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Select(`method,
			COALESCE(SUM(CASE WHEN kind = ? AND status = ? THEN amount ELSE 0 END), 0) AS received,
			COALESCE(SUM(CASE WHEN kind = ? AND status = ? THEN amount ELSE 0 END), 0) AS refunded,
			COALESCE(SUM(CASE WHEN kind = ? AND status = ? THEN 1 ELSE 0 END), 0) AS pending_count,
			COALESCE(SUM(CASE WHEN kind = ? AND status = ? THEN 1 ELSE 0 END), 0) AS confirmed_count`,
			models.PaymentKindPayment, models.PaymentStatusConfirmed,
			models.PaymentKindRefund, models.PaymentStatusConfirmed,
			models.PaymentKindPayment, models.PaymentStatusPending,
			models.PaymentKindPayment, models.PaymentStatusConfirmed).
		Where("business_id = ?", businessId)
	if fromDate != nil {
		q = q.Where("created_at >= ?", fromDate.UTC())
	}
	if toDate != nil {
		q = q.Where("created_at < ?", toDate.UTC())
	}
	var totals []methodTotals
	if err := q.Group("method").Scan(&totals).Error; err != nil {
		return nil, err
	}

	byMethod := make(map[string]methodTotals, len(totals))
	for _, t := range totals {
		byMethod[t.Method] = t
	}
	rows := make([]*PaymentMethodReportRow, 0, len(models.LedgerMethods))
	for _, m := range models.LedgerMethods {
		t := byMethod[string(m)]
		received := t.Received.Round(2)
		refunded := t.Refunded.Round(2)
		rows = append(rows, &PaymentMethodReportRow{
			Method:         m,
			Received:       received,
			Refunded:       refunded,
			Net:            received.Sub(refunded),
			PendingCount:   t.PendingCount,
			ConfirmedCount: t.ConfirmedCount,
		})
	}
	return rows, nil
}

func ExportPaymentMethodReport(rows []*PaymentMethodReportRow) (*excelize.File, error) {
	data := make([]ExcelExporter, 0, len(rows))
	for _, r := range rows {
		data = append(data, *r)
	}
	f := excelize.NewFile()
	headings := []string{"Method", "Received", "Refunded", "Net", "PendingCount", "ConfirmedCount"}
	if err := writeSheet(f, defaultSheet, headings, data); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}
