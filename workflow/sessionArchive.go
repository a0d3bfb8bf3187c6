package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/models/reports"
	"github.com/mmdatafocus/salon_backend/utils"
)

// UploadFunc stores an archived report; the default writes to GCS.
type UploadFunc func(ctx context.Context, objectName string, data []byte, contentType string) error

var uploadArchive UploadFunc = utils.UploadFileToGCS

func cashSessionObjectName(businessId string, session *models.CashSession) string {
	return fmt.Sprintf("cash-sessions/%s/%s-%d.xlsx", businessId, session.OpenedAt.UTC().Format("20060102"), session.ID)
}

// ArchiveCashSession uploads the close report of a closed session and
// returns the object name.
func ArchiveCashSession(ctx context.Context, businessId string, sessionId int) (string, error) {
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	snap, err := models.GetCashSessionSnapshot(ctx, sessionId)
	if err != nil {
		return "", err
	}
	if snap.Session.Status != models.CashSessionStatusClosed {
		return "", errors.New("only closed cash sessions can be archived")
	}
	movements, err := models.ListCashTransactions(ctx, sessionId)
	if err != nil {
		return "", err
	}
	f, err := reports.ExportCashSessionReport(snap, movements)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", err
	}
	objectName := cashSessionObjectName(businessId, snap.Session)
	if err := uploadArchive(ctx, objectName, buf.Bytes(), reports.XlsxContentType); err != nil {
		return "", err
	}
	return objectName, nil
}

// ArchiveClosedSessions archives every session of the business closed at or
// after since. Failures are logged and counted; the rest keep going.
func ArchiveClosedSessions(ctx context.Context, businessId string, since time.Time) (archived int, failed int, err error) {
	var ids []int
	err = config.GetDB().WithContext(ctx).Model(&models.CashSession{}).
		Where("business_id = ? AND status = ? AND closed_at >= ?", businessId, models.CashSessionStatusClosed, since.UTC()).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, 0, err
	}
	logger := config.GetLogger()
	for _, id := range ids {
		if _, aerr := ArchiveCashSession(ctx, businessId, id); aerr != nil {
			failed++
			config.LogError(logger, "workflow", "ArchiveClosedSessions", "archive", map[string]interface{}{"business_id": businessId, "session_id": id}, aerr)
			continue
		}
		archived++
	}
	return archived, failed, nil
}
