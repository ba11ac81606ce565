package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/meaningbot/internal"
	"codeberg.org/snonux/meaningbot/internal/fallback"
)

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meaningbot",
		Short: "Adaptive meaning-resolution engine for chat translation",
		Long: `meaningbot resolves chat messages to learned multilingual meanings.

Messages that match a learned meaning are answered from the dictionary;
everything else is translated by the fallback provider (Gemini, OpenAI or
a local glossary) and learned as a new meaning. Feedback, corrections and
merges refine the dictionary over time.

Examples:
  meaningbot resolve --lang en "hello"          # Resolve one message
  meaningbot process --batch messages.jsonl     # Resolve messages from a file
  meaningbot correct 1001 ja "やあ"               # Add a corrected variant
  meaningbot show 1001                          # Inspect a meaning`,
		Version:      internal.Version,
		SilenceUsage: true,
	}

	setupFlags(rootCmd, flags)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// Global flags
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.meaningbot.yaml)")
	cmd.PersistentFlags().StringVarP(&flags.DataDir, "data-dir", "d", flags.DataDir, "Directory holding the dictionary, distances, journal and channel links")
	cmd.PersistentFlags().StringVar(&flags.Backend, "backend", flags.Backend, "Storage backend: json or sqlite")
	cmd.PersistentFlags().StringVar(&flags.Provider, "provider", flags.Provider, "Fallback translator: gemini, openai, static, chain or none")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")

	bindFlagsToViper(cmd)
}

// AddMessageFlags adds the flags describing an inbound message to cmd
func AddMessageFlags(cmd *cobra.Command, flags *Flags) {
	cmd.Flags().StringVarP(&flags.Lang, "lang", "l", "", "Source language (default: the channel's linked language)")
	cmd.Flags().StringVarP(&flags.ChannelID, "channel", "c", flags.ChannelID, "Channel the message was sent in")
	cmd.Flags().StringVar(&flags.Author, "author", flags.Author, "Author of the message")
	cmd.Flags().StringVar(&flags.ReplyAuthor, "reply-to", "", "Author of the message being replied to")
	cmd.Flags().BoolVar(&flags.JSONOutput, "json", false, "Print results as JSON")
}

func bindFlagsToViper(cmd *cobra.Command) {
	viper.BindPFlag("data.dir", cmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("store.backend", cmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("fallback.provider", cmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("log.verbose", cmd.PersistentFlags().Lookup("verbose"))
}

// SetDefaults registers the default configuration values
func SetDefaults() {
	viper.SetDefault("data.dir", "data")
	viper.SetDefault("data.dictionary", filepath.Join("dictionaries", "translate.json"))
	viper.SetDefault("data.distances", filepath.Join("dictionaries", "meaning_distance.json"))
	viper.SetDefault("data.journal", "translate_logs.jsonl")
	viper.SetDefault("data.channels", "channel_links.json")
	viper.SetDefault("data.archive", "archive")
	viper.SetDefault("store.backend", "json")
	viper.SetDefault("store.sqlite_path", "meaningbot.db")
	viper.SetDefault("snapshot.interval", 30*time.Second)
	viper.SetDefault("fallback.provider", "gemini")
	viper.SetDefault("fallback.static_file", "")
	viper.SetDefault("fallback.timeout", fallback.DefaultTimeout)
	viper.SetDefault("fallback.languages", fallback.SupportedLanguages)
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("breaker.max_failures", 5)
	viper.SetDefault("breaker.open_timeout", time.Minute)
	viper.SetDefault("engine.half_life", 7*24*time.Hour)
	viper.SetDefault("engine.window", 20)
	viper.SetDefault("engine.min_similarity", 0.8)
	viper.SetDefault("engine.seed", 0)
	viper.SetDefault("log.level", "info")
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	SetDefaults()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".meaningbot" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".meaningbot")
	}

	// Environment variables
	viper.SetEnvPrefix("MEANINGBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	// First check environment variable
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}

	// Then check config file
	return viper.GetString("openai.api_key")
}

// GetGeminiKey retrieves the Gemini API key from environment or config
func GetGeminiKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return viper.GetString("gemini.api_key")
}
