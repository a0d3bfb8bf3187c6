package reports

import (
	"time"

	"github.com/mmdatafocus/salon_backend/models"
	"github.com/xuri/excelize/v2"
)

type cashSessionLine struct {
	label string
	value interface{}
}

func (l cashSessionLine) GetCellValues() []interface{} {
	return []interface{}{l.label, l.value}
}

type cashMovementLine struct {
	*models.CashTransaction
}

func (l cashMovementLine) GetCellValues() []interface{} {
	category, notes := "", ""
	if l.Category != nil {
		category = *l.Category
	}
	if l.Notes != nil {
		notes = *l.Notes
	}
	return []interface{}{
		l.ID,
		l.CreatedAt.Format(time.RFC3339),
		string(l.Type),
		l.Amount.InexactFloat64(),
		category,
		notes,
	}
}

// ExportCashSessionReport builds the close-of-day workbook: a "Summary" sheet
// with the snapshot figures and a "Movements" sheet with manual cash rows.
func ExportCashSessionReport(snap *models.CashSessionSnapshot, movements []*models.CashTransaction) (*excelize.File, error) {
	s := snap.Session
	summary := []ExcelExporter{
		cashSessionLine{"Session", s.ID},
		cashSessionLine{"Status", string(s.Status)},
		cashSessionLine{"Opened At", s.OpenedAt.Format(time.RFC3339)},
		cashSessionLine{"Opened By", s.OpenedByName},
		cashSessionLine{"Opening Balance", snap.OpeningBalance.InexactFloat64()},
		cashSessionLine{"Invoice Cash In", snap.InvoiceCashIn.InexactFloat64()},
		cashSessionLine{"Invoice Cash Out", snap.InvoiceCashOut.InexactFloat64()},
		cashSessionLine{"Manual In", snap.ManualIn.InexactFloat64()},
		cashSessionLine{"Manual Out", snap.ManualOut.InexactFloat64()},
		cashSessionLine{"Expected Closing Balance", snap.ExpectedClosingBalance.InexactFloat64()},
	}
	if s.ClosedAt != nil {
		summary = append(summary, cashSessionLine{"Closed At", s.ClosedAt.Format(time.RFC3339)})
	}
	if s.ActualClosingBalance != nil {
		summary = append(summary, cashSessionLine{"Actual Closing Balance", s.ActualClosingBalance.InexactFloat64()})
	}
	if s.Discrepancy != nil {
		summary = append(summary, cashSessionLine{"Discrepancy", s.Discrepancy.InexactFloat64()})
	}

	lines := make([]ExcelExporter, 0, len(movements))
	for _, m := range movements {
		lines = append(lines, cashMovementLine{m})
	}

	f := excelize.NewFile()
	if err := writeSheet(f, "Summary", []string{"Item", "Value"}, summary); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSheet(f, "Movements", []string{"Id", "CreatedAt", "Type", "Amount", "Category", "Notes"}, lines); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.DeleteSheet(defaultSheet)
	if idx, err := f.GetSheetIndex("Summary"); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return f, nil
}
