package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/org/adops/pkg/models"
)

// outputJSON switches every renderer from its table form to indented JSON
// of the decoded payload.
var outputJSON bool

func emitJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}

func renderAccounts(accounts []models.AccountStatus) {
	if outputJSON {
		emitJSON(accounts)
		return
	}
	if len(accounts) == 0 {
		fmt.Println("No connected accounts.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tVALID\tEXPIRES\tUPDATED")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n",
			a.ExternalAccountID, a.Valid, formatTime(a.ExpiresAt), formatTime(a.UpdatedAt))
	}
	w.Flush()
}

func renderStatus(ownerID, accountID string, valid bool) {
	if outputJSON {
		emitJSON(map[string]any{
			"owner_id":            ownerID,
			"external_account_id": accountID,
			"valid":               valid,
		})
		return
	}
	if valid {
		fmt.Printf("Credential for %s/%s is live.\n", ownerID, accountID)
	} else {
		fmt.Printf("No usable credential for %s/%s; reconnect the account.\n", ownerID, accountID)
	}
}

func renderAudit(entries []models.AuditEntry) {
	if outputJSON {
		emitJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMETHOD\tPATH\tCODE\tMS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Operation, e.Path, e.ResponseCode, e.ResponseTimeMs)
	}
	w.Flush()
}

func renderHealth(status string) {
	if outputJSON {
		emitJSON(map[string]string{"status": status})
		return
	}
	fmt.Println("Server status:", status)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
}

func printSuccess(msg string) {
	fmt.Println(msg)
}
