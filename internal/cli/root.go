package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/model"
)

// Version is set at build time via -ldflags
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sourcecheck",
	Short: "SourceCheck - verify extracted claims against their source text",
	Long: `SourceCheck checks claims extracted from a document (summaries, form
fields, structured notes) against the source text they came from.

For every claim it reports a verdict (supported, refuted or insufficient
evidence), the source spans it relied on, a confidence score, and quality
diagnostics such as vague or over-specific wording.

Verdicts describe support in the given source. They are not a judgement
of truth.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of SourceCheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sourcecheck %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.sourcecheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// configDir returns the directory holding the user config file
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".sourcecheck"), nil
}

var optionalKeys = []string{
	"backend.api_key",
	"backend.model",
	"backend.embedding_model",
	"backend.base_url",
	"cache.dir",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := setDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading defaults: %v\n", err)
	}

	// Read in environment variables that match SOURCECHECK_*
	viper.SetEnvPrefix("SOURCECHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Keys without a non-empty default are unknown to viper until bound
	for _, key := range optionalKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key of cfg as a viper default, so environment
// variables can override keys the config file does not mention
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	setDefaultValues(v, "", values)
	return nil
}

func setDefaultValues(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			setDefaultValues(v, key, nested)
			continue
		}
		v.SetDefault(key, value)
	}
}

// loadConfig resolves the application config from flags, environment,
// config file and defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderEnv(&cfg.Backend)
	return cfg, nil
}

// applyProviderEnv fills unset backend credentials from the conventional
// provider variables
func applyProviderEnv(b *model.BackendConfig) {
	switch strings.ToLower(b.Provider) {
	case "openai":
		if b.APIKey == "" {
			b.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic", "claude":
		if b.APIKey == "" {
			b.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "ollama":
		if b.BaseURL == "" {
			b.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
}
