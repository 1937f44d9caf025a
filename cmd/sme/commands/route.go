package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sme-labs/sme-go/internal/routing"
)

// NewRouteCmd constructs the `sme route` command, which runs the signal
// router once and prints the decision. Useful for inspecting routing rules
// without a running server.
func NewRouteCmd() *cobra.Command {
	var tone float64
	var signalType string
	var drift float64
	var audit bool

	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Route a signal once and print the selected agent",
		Long: `Run the signal router for a single signal and print the decision as JSON.

The router applies its rules in priority order: emotional tone above 0.7
selects Axis, drift above 0.5 selects M, compliance signals select M,
biometric and relational signals select Oria, and everything else falls
back to Selah.

Examples:
  sme route "user seems agitated" --tone 0.9 --type emotional --drift 0.1
  sme route "routine check" --type compliance
  sme route "weekly sync" --type relational --drift 0.6 --audit`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			decision := routing.Route(query, tone, signalType, drift)

			if audit {
				log := routing.NewAuditLog(getEnvOrDefault("SME_ROUTER_LOG", "router_log.jsonl"))
				entry := routing.AuditEntry{
					SelectedAgent: decision.SelectedAgent,
					Reason:        decision.Reason,
					SignalType:    signalType,
					DriftScore:    drift,
				}
				if err := log.Record(entry); err != nil {
					return fmt.Errorf("route: failed to record decision: %w", err)
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		},
	}

	cmd.Flags().Float64Var(&tone, "tone", 0.0, "Emotional tone score in [0,1]")
	cmd.Flags().StringVarP(&signalType, "type", "t", "", "Signal type (emotional, biometric, relational, compliance, ...)")
	cmd.Flags().Float64VarP(&drift, "drift", "d", 0.0, "Drift score in [0,1]")
	cmd.Flags().BoolVar(&audit, "audit", false, "Append the decision to the routing audit log")

	return cmd
}
