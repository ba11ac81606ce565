package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/snonux/meaningbot/internal/cli"
	"codeberg.org/snonux/meaningbot/internal/processor"
)

func newResolveCommand(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve TEXT",
		Short: "Resolve one message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.ProcessText(cmd.Context(), strings.Join(args, " "))
			})
		},
	}
	cli.AddMessageFlags(cmd, flags)
	return cmd
}

func newProcessCommand(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Resolve messages from a batch file or stdin",
		Long: `Resolve messages from a file, one per line. Lines are JSON objects
({"text", "lang", "channel", "author", "reply_author"}), CHANNEL<TAB>AUTHOR<TAB>TEXT,
or plain text. Use --batch - to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.BatchFile == "" {
				flags.BatchFile = "-"
			}
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				summary, err := p.ProcessBatch(cmd.Context())
				if err != nil {
					return err
				}
				if summary.Errors > 0 {
					return fmt.Errorf("%d of %d messages failed", summary.Errors, summary.Total)
				}
				return nil
			})
		},
	}
	cli.AddMessageFlags(cmd, flags)
	cmd.Flags().StringVarP(&flags.BatchFile, "batch", "b", "", "Message file to process (- for stdin)")
	return cmd
}

func newFeedbackCommand(flags *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "feedback ID DELTA",
		Short: "Adjust the confidence of a meaning",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.Feedback(args[0], delta)
			})
		},
	}
}

func newDisputeCommand(flags *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "dispute ID|TEXT",
		Short: "Flag a meaning, or every meaning containing TEXT, as wrong",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.Dispute(strings.Join(args, " "))
			})
		},
	}
}

func newCorrectCommand(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct (ID LANG TEXT | TEXT CORRECTED)",
		Short: "Add a corrected variant to a meaning",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.Correct(args)
			})
		},
	}
	cmd.Flags().BoolVar(&flags.JSONOutput, "json", false, "Print the meaning as JSON")
	return cmd
}

func newMergeCommand(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge SOURCE_ID TARGET_ID",
		Short: "Fold one meaning into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.Merge(args[0], args[1])
			})
		},
	}
	cmd.Flags().BoolVar(&flags.JSONOutput, "json", false, "Print the merged meaning as JSON")
	return cmd
}

func newDecayCommand(flags *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "decay",
		Short: "Run a confidence decay pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.Decay()
			})
		},
	}
}

func newShowCommand(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [ID...]",
		Short: "Show learned meanings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.Show(args)
			})
		},
	}
	cmd.Flags().BoolVar(&flags.JSONOutput, "json", false, "Print meanings as JSON")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent resolutions from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from := time.Time{}
			if since > 0 {
				from = time.Now().Add(-since)
			}
			return processor.History(os.Stdout, cli.LoadSettings().JournalPath, from)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Only show resolutions newer than this (0 for all)")
	return cmd
}

func newBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Copy the dictionary into a timestamped archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return processor.Backup(os.Stdout, cli.LoadSettings(), time.Now())
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List OpenAI chat models usable as fallback translator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return processor.ListModels(cmd.Context(), os.Stdout, cli.LoadSettings())
		},
	}
}

func newChannelsCommand(flags *cli.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List or edit channel language links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				p.ListChannels()
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "link CHANNEL_ID LANG [WEBHOOK]",
		Short: "Link a channel to a language",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			webhook := ""
			if len(args) == 3 {
				webhook = args[2]
			}
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.LinkChannel(args[0], args[1], webhook)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unlink CHANNEL_ID",
		Short: "Remove a channel link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(cmd, flags, func(p *processor.Processor) error {
				return p.UnlinkChannel(args[0])
			})
		},
	})
	return cmd
}
