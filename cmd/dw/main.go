package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"duewatch/internal/app"
	"duewatch/internal/config"
	"duewatch/internal/domain"
	"duewatch/internal/scan"
	"duewatch/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dw",
	Short: "Duewatch CLI",
	Long: `Duewatch scans a vault of Markdown notes for unchecked checklist lines
carrying due-date metadata and delivers one Gotify notification per task
once its due moment has passed. Deliveries are recorded in a ledger so a
task never fires twice within a day; a run landing before the daily
notification window resets the ledger for the new day.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DUEWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func runCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the vault once and notify due tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Starting duewatch scan...")
			workspace := viper.GetString("workspace")
			e, cleanup, err := app.BuildEngine(workspace)
			if err != nil {
				// Recoverable for the operator: report, exit zero.
				fmt.Println("configuration error:", err)
				return nil
			}
			defer cleanup()
			report, err := e.Run(cmd.Context(), scan.RunOptions{DryRun: dryRun})
			if err != nil {
				fmt.Println("run error:", err)
				return nil
			}
			if err := printReport(report); err != nil {
				return err
			}
			fmt.Println("Run complete.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate due tasks without sending or recording")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault, ledger, and recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e scan.Engine) error {
				count, err := e.Ledger.Count(ctx)
				if err != nil {
					return err
				}
				evts, err := e.Events.Latest(ctx, 5, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"vault_path":   e.Config.Vault.Path,
					"ledger_count": count,
					"last_events":  evts,
				})
			})
		},
	}
}

func ledgerCmd() *cobra.Command {
	ledger := &cobra.Command{Use: "ledger", Short: "Inspect or reset the delivery ledger"}
	ledger.AddCommand(ledgerListCmd())
	ledger.AddCommand(ledgerResetCmd())
	return ledger
}

func ledgerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List delivery records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e scan.Engine) error {
				entries, err := e.Ledger.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task ID", "Sent At"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.TaskID, e.SentAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func ledgerResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Destroy and recreate the delivery ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e scan.Engine) error {
				if err := e.Ledger.Reset(ctx); err != nil {
					return err
				}
				fmt.Println("ledger reset")
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e scan.Engine) error {
				evts, err := e.Events.Latest(ctx, n, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage duewatch.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var vaultPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default duewatch.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(vaultPath)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&vaultPath, "vault", "./notes", "vault root path")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(config.Path(viper.GetString("workspace")))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, cleanup, err := app.BuildEngine(workspace)
			if err != nil {
				return err
			}
			defer cleanup()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("DUEWATCH_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("DUEWATCH_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving duewatch API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, scan.Engine) error) error {
	e, cleanup, err := app.BuildEngine(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, e)
}

func printReport(report domain.RunReport) error {
	if viper.GetBool("json") {
		return printJSON(report)
	}
	if report.Reset {
		fmt.Println("before today's notification window: ledger reset, nothing scanned")
		return nil
	}
	fmt.Printf("files: %d scanned, %d failed; tasks: %d considered, %d sent, %d failed\n",
		report.FilesScanned, report.FilesFailed, report.Candidates, report.Sent, report.Failed)
	if len(report.Results) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"File", "Line", "Task", "Outcome", "Detail"})
	for _, r := range report.Results {
		tw.AppendRow(table.Row{r.File, r.Line, r.Text, r.Outcome, r.Detail})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
