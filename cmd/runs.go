package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/store"
)

func runsCMD() *cobra.Command {
	var cfgPath string
	var limit int
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			st, err := store.Open(context.Background(), cfg.Checkpoint,
				log.New(log.Writer(), "[STORE] ", log.LstdFlags))
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("no runs")
				return nil
			}
			fmt.Printf("%-6s %-22s %-20s %-12s %s\n", "ID", "STATUS", "PHASE", "APPROVAL", "CREATED")
			for _, r := range items {
				fmt.Printf("%-6d %-22s %-20s %-12s %s\n",
					r.ID, r.Status, r.WorkflowPhase, r.ApprovalStatus, r.CreatedAt)
			}
			return nil
		},
	}
	runs.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	runs.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return runs
}
