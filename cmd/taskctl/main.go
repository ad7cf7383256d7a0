package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vortex-technology1/talko-task-manager/internal/app"
	"github.com/Vortex-technology1/talko-task-manager/internal/config"
	"github.com/Vortex-technology1/talko-task-manager/internal/seed"
	"github.com/Vortex-technology1/talko-task-manager/internal/sweep"
)

var (
	flagEnvFile string
	flagCompany string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskctl",
		Short: "Operate the task manager from the command line",
		Long: `taskctl runs sweeps on demand, repairs processes stuck between steps and
loads company setup (functions, templates, users) from YAML files.
Configuration comes from the same environment as the services.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env", ".env", "Env file to load before reading configuration")

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(seedCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// open loads configuration and wires the services. Sweeps and replays
// notify directly, so no producer is opened.
func open(ctx context.Context) (*app.Services, error) {
	_ = godotenv.Load(flagEnvFile)
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(cfg.LogLevel)
	log.SetOutput(os.Stderr)
	return app.Open(ctx, cfg, log, false)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <kind>",
		Short:     "Run one sweep over every company",
		Long:      fmt.Sprintf("Run one sweep over every company. Kinds: %v.", sweep.Kinds),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: sweep.Kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			st, err := svc.Sweeper.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func replayCmd() *cobra.Command {
	var processID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Advance a process stuck between steps or recreate its missing task",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			rp, err := svc.Engine.ActivateStep(cmd.Context(), flagCompany, processID)
			if err != nil {
				return fmt.Errorf("replay %s: %w", processID, err)
			}
			fields := logrus.Fields{"process": processID, "created": rp.Created, "advanced": rp.Advanced, "completed": rp.Completed}
			if rp.Task != nil {
				fields["task"] = rp.Task.ID
			}
			svc.Log.WithFields(fields).Info("taskctl: replayed")
			return printJSON(rp)
		},
	}
	cmd.Flags().StringVar(&flagCompany, "company", "", "Company id")
	cmd.Flags().StringVar(&processID, "process", "", "Process id")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("process")
	return cmd
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load functions, process templates and users from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := seed.Load(f)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			sum, err := seed.Apply(cmd.Context(), svc.Store, flagCompany, data)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %s: %d users, %d functions, %d templates\n", flagCompany, sum.Users, sum.Functions, sum.Templates)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagCompany, "company", "", "Company id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed YAML file")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
