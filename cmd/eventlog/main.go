// Command eventlog manages the device-local attendance cache and its
// background synchronization with the remote attendance service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/campuspass/eventlog/internal/api"
	"github.com/campuspass/eventlog/internal/config"
	"github.com/campuspass/eventlog/internal/logging"
	"github.com/campuspass/eventlog/internal/normalize"
	"github.com/campuspass/eventlog/internal/store"
	"github.com/campuspass/eventlog/internal/syncd"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "eventlog",
	Short: "Offline attendance cache and sync",
	Long: `eventlog buffers attendance scans in a local SQLite database
(eventlog.db) while the device is offline and reconciles them with the
remote attendance service on a fixed interval.`,
	SilenceUsage: true,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.service.RefreshEventCache(ctx); err != nil {
			// The loop can still run; the purge guard just stays stale.
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}

		app.service.Start()
		<-ctx.Done()
		app.service.Stop()
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		ctx := cmd.Context()
		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			if err := app.service.RefreshEventCache(ctx); err != nil {
				return err
			}
		}
		return app.service.Tick(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local buffer and cache sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		counts, err := app.store.Counts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Database:   %s\n", app.cfg.Database.Path)
		fmt.Printf("Attendance: %d buffered\n", counts.Attendance)
		fmt.Printf("Records:    %d\n", counts.Records)
		fmt.Printf("Events:     %d cached\n", counts.Events)
		fmt.Printf("Users:      %d cached\n", counts.Users)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load event record groups into the records buffer",
	Long: `Read a JSON array of per-event record groups from file (or stdin)
and replace the records buffer with the flattened rows. Malformed groups
are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		in := os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		n, err := importRecords(cmd.Context(), app.store, app.normalizer, in)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d records\n", n)
		return nil
	},
}

// importRecords decodes record groups from r, flattens them and replaces the
// records buffer. Returns the number of rows saved.
func importRecords(ctx context.Context, st store.Store, n *normalize.Normalizer, r io.Reader) (int, error) {
	var groups []normalize.RecordGroup
	if err := json.NewDecoder(r).Decode(&groups); err != nil {
		return 0, fmt.Errorf("failed to decode record groups: %w", err)
	}
	rows := n.Flatten(groups)
	if err := st.SaveRecords(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe local data (logout)",
	Long: `Empty every local table while keeping the schema. With --drop the
tables are dropped and the schema recreated from scratch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		ctx := cmd.Context()
		if drop, _ := cmd.Flags().GetBool("drop"); drop {
			if err := app.store.DropAllTables(ctx); err != nil {
				return err
			}
			fmt.Println("All tables dropped and schema recreated")
			return nil
		}
		if err := app.store.ClearAllData(ctx); err != nil {
			return err
		}
		fmt.Println("All local data cleared")
		return nil
	},
}

// app holds the wired service graph for one command invocation.
type app struct {
	cfg        *config.Config
	store      store.Store
	normalizer *normalize.Normalizer
	service    *syncd.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	w := logging.Writer(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	st := store.NewManager(cfg.Database.Path, logging.New(w, "[store] "))
	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logging.New(w, "[api] "))
	service := syncd.New(st, client, &syncd.Config{
		Interval: cfg.Sync.Interval,
		Logger:   logging.New(w, "[syncd] "),
	})

	return &app{
		cfg:        cfg,
		store:      st,
		normalizer: normalize.New(logging.New(w, "[normalize] ")),
		service:    service,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default eventlog.yaml)")
	syncCmd.Flags().Bool("refresh", false, "refresh the event cache before syncing")
	resetCmd.Flags().Bool("drop", false, "drop tables instead of emptying them")

	rootCmd.AddCommand(daemonCmd, syncCmd, statusCmd, importCmd, resetCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
