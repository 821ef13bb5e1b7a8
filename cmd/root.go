// Package cmd wires the CLI commands over the shared pipeline runtime.
package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/agents"
	"github.com/slidesmith/slidesmith/internal/corpus"
	"github.com/slidesmith/slidesmith/internal/events"
	"github.com/slidesmith/slidesmith/internal/pipeline"
	"github.com/slidesmith/slidesmith/internal/preview"
	"github.com/slidesmith/slidesmith/internal/store"
	"github.com/slidesmith/slidesmith/provider"
)

// Execute runs the CLI root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "slidesmith",
		Short:         "Presentation generation pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCMD(), generateCMD(), migrateCMD(), runsCMD())
	return root.Execute()
}

// runtime bundles the collaborators every command needs.
type runtime struct {
	cfg    *config.Config
	store  *store.Store
	events *events.Store
	ctrl   *pipeline.Controller
}

func buildRuntime(ctx context.Context, cfgPath string) (*runtime, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Checkpoint, log.New(log.Writer(), "[STORE] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}

	evLogger := log.New(log.Writer(), "[EVENTS] ", log.LstdFlags)
	bus := events.NewBus(ctx, cfg.Redis.URL, cfg.Redis.Timeout, evLogger)
	ev := events.NewStore(cfg.Events.MaxPerRun, bus, evLogger)

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		st.Close()
		return nil, err
	}
	ix, err := corpus.Load(cfg.Corpus.Dir, log.New(log.Writer(), "[CORPUS] ", log.LstdFlags))
	if err != nil {
		st.Close()
		return nil, err
	}

	ag := agents.New(llm, ix, cfg.General.ArtifactsDir, log.New(log.Writer(), "[AGENTS] ", log.LstdFlags))
	pv := preview.NewWorker(cfg.Preview, cfg.General.ArtifactsDir, log.New(log.Writer(), "[PREVIEW] ", log.LstdFlags))
	ctrl := pipeline.NewController(st, ev, pipeline.DefaultPhases(ag), pv,
		log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags))

	return &runtime{cfg: cfg, store: st, events: ev, ctrl: ctrl}, nil
}

func (r *runtime) close() {
	if r.store != nil {
		r.store.Close()
	}
}
