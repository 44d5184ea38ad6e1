package cmd

import (
	"encoding/json"

	"github.com/solatis/rulekeeper/internal/facts"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
	"github.com/spf13/cobra"
)

var operatorsCmd = &cobra.Command{
	Use:   "operators [kind]",
	Short: "Print the operator catalog and built-in actions as JSON",
	Long: `Operators prints the comparison operators of each variable kind and the
built-in actions available to evaluate and serve. Naming a kind restricts
the operator list to that kind.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOperators,
}

func init() {
	rootCmd.AddCommand(operatorsCmd)
}

func runOperators(cmd *cobra.Command, args []string) error {
	data := rules.ExportRuleData(nil, facts.BuiltinActions())
	if len(args) == 1 {
		kind, err := types.ParseKind(args[0])
		if err != nil {
			return err
		}
		data.VariableTypeOperators = map[string][]rules.Operator{
			kind.String(): rules.Operators(kind),
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
