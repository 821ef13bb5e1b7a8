package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/store"
)

func migrateCMD() *cobra.Command {
	var cfgPath string
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured backend",
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
			if err := st.Migrate(); err != nil {
				return err
			}
			log.Printf("migrations applied (%s)", cfg.Checkpoint.Backend)
			return nil
		},
	}
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return migrate
}
