package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/sirupsen/logrus"
)

type RederiveResult struct {
	Scanned int
	Changed int
	Failed  int
}

// RederiveInvoices recomputes every invoice of a business from its ledger,
// one short transaction per invoice. It repairs rows written before a
// derivation fix and is safe to re-run.
func RederiveInvoices(ctx context.Context, businessId string, batchSize int) (RederiveResult, error) {
	var result RederiveResult
	if businessId == "" {
		return result, errors.New("business id is required")
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	logger := config.GetLogger()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	db := config.GetDB()

	lastId := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var ids []int
		err := db.WithContext(ctx).Model(&models.Invoice{}).
			Where("business_id = ? AND id > ?", businessId, lastId).
			Order("id").
			Limit(batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			result.Scanned++
			_, changed, err := models.RederiveInvoice(ctx, id)
			if err != nil {
				result.Failed++
				config.LogError(logger, "workflow", "RederiveInvoices", "rederive", map[string]interface{}{"business_id": businessId, "invoice_id": id}, err)
				continue
			}
			if changed {
				result.Changed++
			}
		}
		lastId = ids[len(ids)-1]
	}

	config.LogInfo(logger, "workflow", "RederiveInvoices", logrus.Fields{
		"business_id": businessId,
		"scanned":     result.Scanned,
		"changed":     result.Changed,
		"failed":      result.Failed,
	}, "invoice re-derive finished")
	return result, nil
}
