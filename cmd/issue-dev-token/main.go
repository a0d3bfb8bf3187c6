// issue-dev-token prints a bearer token for local testing against the API.
// It signs with API_SECRET, like the identity service does.
//
// Usage:
//
//	go run ./cmd/issue-dev-token -business-id=<uuid> -user-id=1 -name=Owner
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/salon_backend/utils"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	userID := flag.Int("user-id", 1, "Actor user id")
	name := flag.String("name", "Dev", "Actor display name")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		fmt.Fprintln(os.Stderr, "refusing to issue a dev token with GO_ENV=production")
		os.Exit(1)
	}
	token, err := utils.JwtGenerate(strings.TrimSpace(*businessID), *userID, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
