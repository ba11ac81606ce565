package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeberg.org/snonux/meaningbot/internal/cli"
	"codeberg.org/snonux/meaningbot/internal/logging"
	"codeberg.org/snonux/meaningbot/internal/processor"
)

var logger = zap.NewNop()

func main() {
	// Create flags instance
	flags := cli.NewFlags()

	// Create root command
	rootCmd := cli.CreateRootCommand(flags)

	// Set up command initialization
	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		s := cli.LoadSettings()
		l, err := logging.New(s.LogLevel, false)
		if err != nil {
			return err
		}
		logger = l
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	}

	rootCmd.AddCommand(
		newResolveCommand(flags),
		newProcessCommand(flags),
		newFeedbackCommand(flags),
		newDisputeCommand(flags),
		newCorrectCommand(flags),
		newMergeCommand(flags),
		newDecayCommand(flags),
		newShowCommand(flags),
		newHistoryCommand(),
		newBackupCommand(),
		newModelsCommand(),
		newChannelsCommand(flags),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withProcessor builds a processor for one command and closes it afterwards
func withProcessor(cmd *cobra.Command, flags *cli.Flags, fn func(p *processor.Processor) error) (err error) {
	p, err := processor.NewProcessor(cmd.Context(), flags, cli.LoadSettings(), logger)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(p)
}
