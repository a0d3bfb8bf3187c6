// invoice-rederive recomputes stored invoice status, amount paid, change and
// payment method from the payment ledger.
//
// Usage:
//
//	go run ./cmd/invoice-rederive -business-id=<uuid> [-batch=200]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/mmdatafocus/salon_backend/workflow"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	batch := flag.Int("batch", 200, "Invoices loaded per query")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetUserNameInContext(context.Background(), "InvoiceRederive")
	result, err := workflow.RederiveInvoices(ctx, strings.TrimSpace(*businessID), *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rederive failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("scanned=%d changed=%d failed=%d\n", result.Scanned, result.Changed, result.Failed)
	if result.Failed > 0 {
		os.Exit(2)
	}
}
