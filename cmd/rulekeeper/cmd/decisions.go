package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/solatis/rulekeeper/internal/types"
	"github.com/spf13/cobra"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect the decision log",
}

var decisionsShowCmd = &cobra.Command{
	Use:   "show <evaluation-id>",
	Short: "Print the action results recorded for one evaluation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecisionsShow,
}

var decisionsStatsCmd = &cobra.Command{
	Use:   "stats <action>",
	Short: "Count recorded results of an action by status",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecisionsStats,
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.AddCommand(decisionsShowCmd, decisionsStatsCmd)
}

func runDecisionsShow(cmd *cobra.Command, args []string) error {
	evaluationID, err := types.ParseEvaluationID(args[0])
	if err != nil {
		return fmt.Errorf("invalid evaluation id %q: %w", args[0], err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DB.URL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, log, err := openDecisionLog(cmd, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	rows, err := log.ListByEvaluation(cmd.Context(), evaluationID)
	if err != nil {
		return err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		params, err := row.Params()
		if err != nil {
			return err
		}
		result, err := row.Result()
		if err != nil {
			return err
		}
		entry := map[string]any{
			"rule_id":       row.RuleID,
			"rule_name":     row.RuleName,
			"action_name":   row.ActionName,
			"action_params": params,
			"action_status": row.ActionStatus,
			"action_result": result,
			"recorded_at":   row.RecordedAt,
		}
		if row.Error.Valid {
			entry["error"] = row.Error.String
		}
		out = append(out, entry)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runDecisionsStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DB.URL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, log, err := openDecisionLog(cmd, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := log.CountByStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tTOTAL")
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%d\n", c.Status, c.Total)
	}
	return w.Flush()
}
