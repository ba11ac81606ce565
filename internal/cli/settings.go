package cli

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved configuration
type Settings struct {
	DictionaryPath string
	DistancesPath  string
	JournalPath    string
	ChannelsPath   string
	ArchiveDir     string

	Backend    string
	SQLitePath string

	SnapshotInterval time.Duration

	Provider        string
	StaticFile      string
	FallbackTimeout time.Duration
	Languages       []string
	GeminiModel     string
	GeminiKey       string
	OpenAIModel     string
	OpenAIKey       string
	OpenAIBaseURL   string

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	HalfLife      time.Duration
	Window        int
	MinSimilarity float64
	Seed          int64

	LogLevel string
}

// LoadSettings reads the settings from viper. Relative data paths are
// resolved against data.dir.
func LoadSettings() Settings {
	dataDir := viper.GetString("data.dir")

	s := Settings{
		DictionaryPath:     dataPath(dataDir, viper.GetString("data.dictionary")),
		DistancesPath:      dataPath(dataDir, viper.GetString("data.distances")),
		JournalPath:        dataPath(dataDir, viper.GetString("data.journal")),
		ChannelsPath:       dataPath(dataDir, viper.GetString("data.channels")),
		ArchiveDir:         dataPath(dataDir, viper.GetString("data.archive")),
		Backend:            viper.GetString("store.backend"),
		SQLitePath:         dataPath(dataDir, viper.GetString("store.sqlite_path")),
		SnapshotInterval:   viper.GetDuration("snapshot.interval"),
		Provider:           viper.GetString("fallback.provider"),
		StaticFile:         dataPath(dataDir, viper.GetString("fallback.static_file")),
		FallbackTimeout:    viper.GetDuration("fallback.timeout"),
		Languages:          viper.GetStringSlice("fallback.languages"),
		GeminiModel:        viper.GetString("gemini.model"),
		GeminiKey:          GetGeminiKey(),
		OpenAIModel:        viper.GetString("openai.model"),
		OpenAIKey:          GetOpenAIKey(),
		OpenAIBaseURL:      viper.GetString("openai.base_url"),
		BreakerMaxFailures: viper.GetUint32("breaker.max_failures"),
		BreakerOpenTimeout: viper.GetDuration("breaker.open_timeout"),
		HalfLife:           viper.GetDuration("engine.half_life"),
		Window:             viper.GetInt("engine.window"),
		MinSimilarity:      viper.GetFloat64("engine.min_similarity"),
		Seed:               viper.GetInt64("engine.seed"),
		LogLevel:           viper.GetString("log.level"),
	}
	if viper.GetBool("log.verbose") {
		s.LogLevel = "debug"
	}
	return s
}

func dataPath(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) || dataDir == "" {
		return path
	}
	return filepath.Join(dataDir, path)
}
