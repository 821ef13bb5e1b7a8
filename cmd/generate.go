package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/internal/pipeline"
	"github.com/slidesmith/slidesmith/internal/state"
)

func generateCMD() *cobra.Command {
	var (
		cfgPath        string
		educational    bool
		autoApprove    bool
		approvalPhases []string
	)
	generate := &cobra.Command{
		Use:   "generate [brief]",
		Short: "Generate one presentation from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			defer rt.close()

			st := state.New(strings.Join(args, " "), uuid.NewString())
			st.EducationalMode = educational

			st, err = rt.ctrl.Run(context.Background(), st, pipeline.Options{
				AutoApprove:    autoApprove,
				ApprovalPhases: approvalPhases,
			})
			if err != nil {
				return err
			}
			if st.WorkflowStatus == state.StatusWaiting {
				fmt.Printf("run %d waiting for approval after %s\n", st.RunID, st.WaitingForPhase)
				fmt.Printf("resume with: slidesmith serve + POST /runs/%d/approve\n", st.RunID)
				return nil
			}

			fmt.Printf("run %d %s\n", st.RunID, st.WorkflowStatus)
			if st.PPTXPath != "" {
				fmt.Printf("output: %s\n", st.PPTXPath)
			}
			if st.QAReport != nil {
				fmt.Printf("qa: content=%.1f design=%.1f coherence=%.1f\n",
					st.QAReport.ContentScore, st.QAReport.DesignScore, st.QAReport.CoherenceScore)
			}
			for _, e := range st.Errors {
				fmt.Printf("error: %s\n", e)
			}
			return nil
		},
	}
	generate.Flags().BoolVar(&educational, "educational", false, "enable educational mode")
	generate.Flags().BoolVar(&autoApprove, "auto-approve", true, "skip approval gates")
	generate.Flags().StringSliceVar(&approvalPhases, "approval-phases", nil, "phases to gate (outline, research, design)")
	generate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return generate
}
