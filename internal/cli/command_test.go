package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestCreateRootCommand(t *testing.T) {
	flags := NewFlags()
	cmd := CreateRootCommand(flags)

	if cmd.Use != "meaningbot" {
		t.Errorf("Expected Use to be 'meaningbot', got %s", cmd.Use)
	}

	if !strings.Contains(cmd.Short, "meaning-resolution") {
		t.Errorf("Expected Short description to mention meaning-resolution")
	}

	for _, name := range []string{"config", "data-dir", "backend", "provider", "verbose"} {
		t.Run("flag_"+name, func(t *testing.T) {
			if cmd.PersistentFlags().Lookup(name) == nil {
				t.Errorf("Expected persistent flag %s to exist", name)
			}
		})
	}
}

func TestAddMessageFlags(t *testing.T) {
	cmd := &cobra.Command{}
	flags := NewFlags()
	AddMessageFlags(cmd, flags)

	tests := []struct {
		name string
		def  string
	}{
		{"lang", ""},
		{"channel", "cli"},
		{"author", "cli"},
		{"reply-to", ""},
		{"json", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flag *pflag.Flag
			flag = cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("flag %s not found", tt.name)
			}
			if flag.DefValue != tt.def {
				t.Errorf("Expected default %q, got %q", tt.def, flag.DefValue)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	// Save original viper state
	originalConfig := viper.New()
	*originalConfig = *viper.GetViper()
	defer func() {
		*viper.GetViper() = *originalConfig
	}()

	tests := []struct {
		name      string
		setupFunc func(t *testing.T) string
		check     func(t *testing.T)
	}{
		{
			name: "with config file",
			setupFunc: func(t *testing.T) string {
				cfgPath := filepath.Join(t.TempDir(), "test-config.yaml")
				content := `store:
  backend: sqlite
snapshot:
  interval: 5s
openai:
  api_key: test-key
`
				if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
					t.Fatalf("Failed to create test config: %v", err)
				}
				return cfgPath
			},
			check: func(t *testing.T) {
				if got := viper.GetString("store.backend"); got != "sqlite" {
					t.Errorf("Expected store.backend sqlite, got %s", got)
				}
				if got := viper.GetDuration("snapshot.interval"); got != 5*time.Second {
					t.Errorf("Expected snapshot.interval 5s, got %v", got)
				}
			},
		},
		{
			name:      "without config file",
			setupFunc: func(t *testing.T) string { return "" },
			check: func(t *testing.T) {
				if got := viper.GetDuration("fallback.timeout"); got != 15*time.Second {
					t.Errorf("Expected default fallback.timeout 15s, got %v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset viper for each test
			viper.Reset()

			InitConfig(tt.setupFunc(t))
			tt.check(t)

			// Test environment variable prefix
			t.Setenv("MEANINGBOT_TEST_VAR", "test-value")
			if viper.GetString("test_var") != "test-value" {
				t.Error("Environment variable not properly loaded")
			}

			t.Setenv("MEANINGBOT_ENGINE_WINDOW", "7")
			if got := viper.GetInt("engine.window"); got != 7 {
				t.Errorf("Expected nested key from env, got %d", got)
			}
		})
	}
}

func TestGetAPIKeys(t *testing.T) {
	// Save original viper state
	originalConfig := viper.New()
	*originalConfig = *viper.GetViper()
	defer func() {
		*viper.GetViper() = *originalConfig
	}()

	tests := []struct {
		name      string
		envVar    string
		configKey string
		get       func() string
		envValue  string
		cfgValue  string
		expected  string
	}{
		{"openai from environment", "OPENAI_API_KEY", "openai.api_key", GetOpenAIKey, "env-key", "config-key", "env-key"},
		{"openai from config", "OPENAI_API_KEY", "openai.api_key", GetOpenAIKey, "", "config-key", "config-key"},
		{"openai unset", "OPENAI_API_KEY", "openai.api_key", GetOpenAIKey, "", "", ""},
		{"gemini from environment", "GEMINI_API_KEY", "gemini.api_key", GetGeminiKey, "env-key", "config-key", "env-key"},
		{"gemini from config", "GEMINI_API_KEY", "gemini.api_key", GetGeminiKey, "", "config-key", "config-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Setenv(tt.envVar, tt.envValue)
			if tt.cfgValue != "" {
				viper.Set(tt.configKey, tt.cfgValue)
			}

			if got := tt.get(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBindFlagsToViper(t *testing.T) {
	// Save original viper state
	originalConfig := viper.New()
	*originalConfig = *viper.GetViper()
	defer func() {
		*viper.GetViper() = *originalConfig
	}()

	viper.Reset()

	cmd := &cobra.Command{}
	flags := NewFlags()
	setupFlags(cmd, flags)

	cmd.PersistentFlags().Set("data-dir", "/test/data")
	cmd.PersistentFlags().Set("backend", "sqlite")
	cmd.PersistentFlags().Set("provider", "none")

	if viper.GetString("data.dir") != "/test/data" {
		t.Errorf("Expected data.dir to be /test/data, got %s", viper.GetString("data.dir"))
	}
	if viper.GetString("store.backend") != "sqlite" {
		t.Errorf("Expected store.backend to be sqlite, got %s", viper.GetString("store.backend"))
	}
	if viper.GetString("fallback.provider") != "none" {
		t.Errorf("Expected fallback.provider to be none, got %s", viper.GetString("fallback.provider"))
	}
}

func TestLoadSettings(t *testing.T) {
	originalConfig := viper.New()
	*originalConfig = *viper.GetViper()
	defer func() {
		*viper.GetViper() = *originalConfig
	}()

	viper.Reset()
	SetDefaults()
	viper.Set("data.dir", "/srv/bot")
	viper.Set("data.journal", "/var/log/translate.jsonl")
	viper.Set("log.verbose", true)

	s := LoadSettings()

	if s.DictionaryPath != filepath.Join("/srv/bot", "dictionaries", "translate.json") {
		t.Errorf("unexpected dictionary path %s", s.DictionaryPath)
	}
	if s.JournalPath != "/var/log/translate.jsonl" {
		t.Errorf("absolute paths must be kept, got %s", s.JournalPath)
	}
	if s.HalfLife != 7*24*time.Hour || s.Window != 20 || s.MinSimilarity != 0.8 {
		t.Errorf("unexpected engine defaults %+v", s)
	}
	if s.BreakerMaxFailures != 5 || s.BreakerOpenTimeout != time.Minute {
		t.Errorf("unexpected breaker defaults %+v", s)
	}
	if len(s.Languages) != 4 {
		t.Errorf("Expected 4 default languages, got %v", s.Languages)
	}
	if s.LogLevel != "debug" {
		t.Errorf("verbose should select debug logging, got %s", s.LogLevel)
	}
}
