// cash-session-archive uploads close-of-day workbooks for closed cash sessions
// to gs://$GCS_BUCKET/cash-sessions/<business>/.
//
// Usage:
//
//	go run ./cmd/cash-session-archive -business-id=<uuid> -session-id=42
//	go run ./cmd/cash-session-archive -business-id=<uuid> -since=2026-10-01
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/workflow"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	sessionID := flag.Int("session-id", 0, "Archive only this closed session")
	since := flag.String("since", "", "Archive sessions closed on or after this date (YYYY-MM-DD); defaults to yesterday")
	flag.Parse()

	bid := strings.TrimSpace(*businessID)
	if bid == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()

	if *sessionID > 0 {
		objectName, err := workflow.ArchiveCashSession(ctx, bid, *sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "archive session %d: %v\n", *sessionID, err)
			os.Exit(1)
		}
		fmt.Println(objectName)
		return
	}

	from := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if s := strings.TrimSpace(*since); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --since: %v\n", err)
			os.Exit(1)
		}
		from = t
	}
	archived, failed, err := workflow.ArchiveClosedSessions(ctx, bid, from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "archive failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("archived=%d failed=%d\n", archived, failed)
	if failed > 0 {
		os.Exit(2)
	}
}
