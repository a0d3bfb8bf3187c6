package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/models/reports"
)

const idempotencyHeader = "Idempotency-Key"

func registerSettlementRoutes(r gin.IRouter) {
	r.POST("/invoices", createInvoiceHandler)
	r.GET("/invoices/:id", getInvoiceHandler)
	r.POST("/invoices/:id/payments", recordPaymentsHandler)
	r.GET("/invoices/:id/payments", listPaymentsHandler)
	r.POST("/invoices/:id/refunds", refundInvoiceHandler)
	r.POST("/invoices/:id/cancel", cancelInvoiceHandler)
	r.PATCH("/payments/:id/status", updatePaymentStatusHandler)

	r.POST("/cash-sessions/open", openCashSessionHandler)
	r.POST("/cash-sessions/close", closeCashSessionHandler)
	r.GET("/cash-sessions/current", currentCashSessionHandler)
	r.GET("/cash-sessions/:id", cashSessionSnapshotHandler)
	r.POST("/cash-sessions/transactions", recordCashTransactionHandler)
	r.GET("/cash-sessions/:id/transactions", listCashTransactionsHandler)

	r.GET("/reports/payment-methods", paymentMethodReportHandler)

	r.GET("/outbox/status", outboxStatusHandler)
	r.POST("/outbox/:id/replay", replayOutboxHandler)
}

// statusForError maps the engine's error kinds onto HTTP statuses.
func statusForError(err error) int {
	kind, ok := models.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrSessionAlreadyOpen, models.ErrInvalidState:
		return http.StatusConflict
	case models.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeError(c *gin.Context, err error) {
	status := statusForError(err)
	var se *models.SettlementError
	if errors.As(err, &se) {
		c.JSON(status, gin.H{"error": se.Message, "kind": se.Kind})
		return
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": "internal error"})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// idempotencyKey prefers the body field and falls back to the header.
func idempotencyKey(c *gin.Context, fromBody *string) *string {
	if fromBody != nil && strings.TrimSpace(*fromBody) != "" {
		return fromBody
	}
	if h := strings.TrimSpace(c.GetHeader(idempotencyHeader)); h != "" {
		return &h
	}
	return nil
}

func createInvoiceHandler(c *gin.Context) {
	var input models.NewInvoice
	if !bindJSON(c, &input) {
		return
	}
	inv, err := models.CreateInvoice(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func getInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	inv, err := models.GetInvoice(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func recordPaymentsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewInvoicePayments
	if !bindJSON(c, &input) {
		return
	}
	input.IdempotencyKey = idempotencyKey(c, input.IdempotencyKey)
	inv, err := models.RecordInvoicePayments(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func listPaymentsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	rows, err := models.GetInvoicePayments(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func refundInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewInvoiceRefund
	if c.Request.ContentLength != 0 && !bindJSON(c, &input) {
		return
	}
	input.IdempotencyKey = idempotencyKey(c, input.IdempotencyKey)
	inv, err := models.RefundInvoice(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

type cancelInvoiceRequest struct {
	Reason *string `json:"reason"`
}

func cancelInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req cancelInvoiceRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	inv, err := models.CancelInvoice(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func updatePaymentStatusHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.PaymentStatusUpdate
	if !bindJSON(c, &input) {
		return
	}
	pt, err := models.UpdatePaymentStatus(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pt)
}

func openCashSessionHandler(c *gin.Context) {
	var input models.NewCashSession
	if !bindJSON(c, &input) {
		return
	}
	input.IdempotencyKey = idempotencyKey(c, input.IdempotencyKey)
	session, err := models.OpenCashSession(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func closeCashSessionHandler(c *gin.Context) {
	var input models.CloseCashSessionInput
	if !bindJSON(c, &input) {
		return
	}
	session, err := models.CloseCashSession(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func currentCashSessionHandler(c *gin.Context) {
	snap, err := models.GetCurrentCashSessionSnapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func cashSessionSnapshotHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	snap, err := models.GetCashSessionSnapshot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func recordCashTransactionHandler(c *gin.Context) {
	var input models.NewCashTransaction
	if !bindJSON(c, &input) {
		return
	}
	input.IdempotencyKey = idempotencyKey(c, input.IdempotencyKey)
	ct, err := models.RecordCashTransaction(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ct)
}

func listCashTransactionsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	rows, err := models.ListCashTransactions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// parseReportTime accepts RFC3339 or a bare date (midnight UTC).
func parseReportTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", raw)
	}
	return &t, nil
}

func paymentMethodReportHandler(c *gin.Context) {
	from, err := parseReportTime(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := parseReportTime(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := reports.GetPaymentMethodReport(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if !strings.EqualFold(c.Query("format"), "xlsx") {
		c.JSON(http.StatusOK, rows)
		return
	}

	f, err := reports.ExportPaymentMethodReport(rows)
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()
	c.Header("Content-Type", reports.XlsxContentType)
	c.Header("Content-Disposition", "attachment; filename=payment-methods.xlsx")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		config.LogError(config.GetLogger(), "settlementHandlers.go", "paymentMethodReportHandler", "excelize.Write", nil, err)
	}
}

func replayOutboxHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	record, err := models.ReplayOutboxRecord(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record_id":       record.ID,
		"publish_status":  record.PublishStatus,
		"next_attempt_at": record.NextAttemptAt.Format(time.RFC3339Nano),
	})
}

// outboxStatusHandler reports delivery of the latest event for
// ?reference_type=IVP&reference_id=12.
func outboxStatusHandler(c *gin.Context) {
	refId, err := strconv.Atoi(c.Query("reference_id"))
	if err != nil || refId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference_id"})
		return
	}
	refType := models.SettlementReferenceType(strings.ToUpper(strings.TrimSpace(c.Query("reference_type"))))
	status, err := models.GetOutboxStatus(c.Request.Context(), refType, refId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
