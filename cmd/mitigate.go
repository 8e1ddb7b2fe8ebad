package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/bioscope/internal/model"
)

var (
	mitigateRiskType    string
	mitigateThreatLevel string
	mitigateDescription string
)

var mitigateCmd = &cobra.Command{
	Use:   "mitigate",
	Short: "Resolve the mitigation action for one risk",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level, err := model.ParseThreatCode(mitigateThreatLevel)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "mitigate", envParts{corpus: true})
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Service.ResolveMitigation(ctx, mitigateRiskType, level, mitigateDescription)
		return writeJSON(cmd, res)
	},
}

func init() {
	mitigateCmd.Flags().StringVar(&mitigateRiskType, "risk-type", "", "risk type, e.g. \"Invasive Species\"")
	mitigateCmd.Flags().StringVar(&mitigateThreatLevel, "threat-level", string(model.ThreatLow), "high, moderate, low, or unknown")
	mitigateCmd.Flags().StringVar(&mitigateDescription, "description", "", "free-text description of the risk")
	_ = mitigateCmd.MarkFlagRequired("risk-type")
	rootCmd.AddCommand(mitigateCmd)
}
