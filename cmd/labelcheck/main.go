package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/franckalain/labelverdict/internal/analyzer"
	"github.com/franckalain/labelverdict/internal/client"
	"github.com/franckalain/labelverdict/internal/config"
	"github.com/franckalain/labelverdict/internal/database"
	"github.com/franckalain/labelverdict/internal/logger"
	"github.com/franckalain/labelverdict/internal/ml"
	"github.com/franckalain/labelverdict/internal/models"
	"github.com/franckalain/labelverdict/internal/storage"
)

// app holds what every subcommand shares
type app struct {
	configPath string
	storePath  string
	transport  string
	jsonOutput bool

	cfg   *config.Config
	log   *slog.Logger
	db    database.Store
	store *storage.Local
}

func main() {
	_ = godotenv.Load()

	a := &app{}
	root := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "labelcheck",
		Short:         "Analyze food labels against your age, goals and dietary preferences",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.GetConfigPath(), "path to configuration file")
	root.PersistentFlags().StringVar(&a.storePath, "store", "", "path to the local SQLite store (overrides config)")
	root.PersistentFlags().StringVar(&a.transport, "transport", "", "analysis transport: http, ws or direct (overrides config)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newProfileCmd(a),
		newAnalyzeCmd(a),
		newHistoryCmd(a),
		newIngredientsCmd(a),
		newAchievementsCmd(a),
	)
	return root
}

func (a *app) open() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.storePath != "" {
		cfg.Client.StorePath = a.storePath
	}
	if a.transport != "" {
		cfg.Client.Transport = a.transport
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.log = logger.Init(cfg.Log.Level, os.Stderr)

	db, err := database.NewSQLiteDB(cfg.Client.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.db = db
	a.store = storage.NewLocal(db, a.log)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// backend builds the configured analysis transport. The returned function
// releases it.
func (a *app) backend(ctx context.Context) (analyzer.Backend, func(), error) {
	switch a.cfg.Client.Transport {
	case "http":
		return client.NewHTTPBackend(a.cfg.Client.ServerURL, nil), func() {}, nil
	case "ws":
		ws, err := client.NewWSBackend(a.cfg.Client.ServerURL)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { ws.Close() }, nil
	case "direct":
		gen, err := ml.NewGenerator(a.cfg.ML.Type, a.cfg.ML.ConfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ML model: %w", err)
		}
		if err := gen.Load(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to load ML model: %w", err)
		}
		return ml.NewGateway(gen, a.cfg.ML.Timeout.Std(), a.log), func() { gen.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", a.cfg.Client.Transport)
	}
}

// orchestrator returns a workflow bound to the local store. Commands that
// never analyze pass a nil backend.
func (a *app) orchestrator(ctx context.Context, backend analyzer.Backend) *analyzer.Orchestrator {
	return analyzer.New(ctx, backend, a.store,
		analyzer.WithLogger(a.log),
		analyzer.WithPersona(models.Persona(a.cfg.ML.Persona)),
	)
}

func (a *app) out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
