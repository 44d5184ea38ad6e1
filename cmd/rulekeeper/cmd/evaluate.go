package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/solatis/rulekeeper/internal/core/api"
	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/ruleset"
	"github.com/solatis/rulekeeper/internal/facts"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a rule file against a facts file",
	Long: `Evaluate loads rules and facts from JSON or YAML files and prints the
triggered outcomes as JSON. In "first" mode a run where no rule triggers
exits with an error.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("rules", "", "rule file (.json, .yaml, .yml); defaults to rules.path")
	evaluateCmd.Flags().String("facts", "", "facts file (.json, .yaml, .yml)")
	evaluateCmd.Flags().String("mode", "", "evaluation mode (first, all); defaults to engine.mode")
	evaluateCmd.Flags().Bool("stop-on-first", false, "in all mode, stop after the first triggered rule")
	evaluateCmd.Flags().Bool("propagate-failures", false, "fail the run when an action fails instead of reporting it")
	evaluateCmd.Flags().Bool("multi-action", false, "allow rules with several actions")
	evaluateCmd.Flags().Bool("record", false, "append outcomes to the decision log at --db-url")
	_ = evaluateCmd.MarkFlagRequired("facts")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("rules") {
		cfg.Rules.Path, _ = flags.GetString("rules")
	}
	if flags.Changed("mode") {
		cfg.Engine.Mode, _ = flags.GetString("mode")
	}
	if propagate, _ := flags.GetBool("propagate-failures"); propagate {
		cfg.Engine.FailurePolicy = "propagate"
	}
	if multi, _ := flags.GetBool("multi-action"); multi {
		cfg.Engine.MultiAction = true
	}
	if cfg.Rules.Path == "" {
		return fmt.Errorf("--rules required")
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ruleList, err := ruleset.Load(cfg.Rules.Path, compileOptions(cfg)...)
	if err != nil {
		return err
	}
	factsPath, _ := flags.GetString("facts")
	doc, err := facts.LoadFile(factsPath)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}
	opts := []api.ServiceOption{
		api.WithLogger(logger),
		api.WithDefaultMode(cfg.Engine.Mode),
	}
	if record, _ := flags.GetBool("record"); record {
		if cfg.DB.URL == "" {
			return fmt.Errorf("--record requires --db-url")
		}
		database, log, err := openDecisionLog(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		opts = append(opts, api.WithDecisionRecorder(log))
	}

	service, err := api.NewService(engine, opts...)
	if err != nil {
		return err
	}

	stop, _ := flags.GetBool("stop-on-first")
	resp, err := service.Run(cmd.Context(), &api.EvaluateRequest{
		StopOnFirstTrigger: stop,
		Facts:              doc,
		Rules:              ruleList,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp.ToMap())
}

// newEngine builds the engine the configuration describes.
func newEngine(cfg *config.Config, logger *slog.Logger, observer rules.Observer) (*rules.Engine, error) {
	policy, err := rules.ParseFailurePolicy(cfg.Engine.FailurePolicy)
	if err != nil {
		return nil, err
	}
	opts := []rules.Option{
		rules.WithLogger(logger),
		rules.WithFailurePolicy(policy),
	}
	if observer != nil {
		opts = append(opts, rules.WithObserver(observer))
	}
	return rules.NewEngine(opts...), nil
}

func compileOptions(cfg *config.Config) []rules.CompileOption {
	if cfg.Engine.MultiAction {
		return []rules.CompileOption{rules.WithMultipleActions()}
	}
	return nil
}
