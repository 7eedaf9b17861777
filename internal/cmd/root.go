package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/config"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/output"
)

var (
	cfgFile      string
	verbose      bool
	githubToken  string
	noCache      bool
	outputFormat string
	outPath      string
	outDir       string

	// appViper holds layered configuration once initConfig has run.
	appViper *viper.Viper

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "GitHub REST API client that tracks rate limits",
	Long: `octolens queries the GitHub REST API and reports the rate limit quota
carried on every response.

Quota state is persisted locally so repeated invocations back off before
GitHub starts rejecting requests, and GET responses are revalidated with
ETags so cached answers do not spend quota.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/octolens/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	flags.StringVar(&githubToken, "token", "", "GitHub token (overrides github.token, GITHUB_TOKEN and GH_TOKEN)")
	flags.BoolVar(&noCache, "no-cache", false, "bypass the conditional response cache")
	flags.StringVarP(&outputFormat, "output-format", "o", string(output.FormatTable), "Output format: table|markdown|json|yaml")
	flags.StringVar(&outPath, "out", "", "Write output to a file (default stdout)")
	flags.StringVar(&outDir, "out-dir", "", "Write output to a directory")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	v, err := config.NewViper(cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, ExitConfigInvalid, "Failed to read configuration", err)
		return
	}

	if err := v.BindPFlag("github.token", rootCmd.PersistentFlags().Lookup("token")); err != nil {
		observability.CLILogger.Warn("Failed to bind --token", zap.Error(err))
	}

	if used := v.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	} else {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}

	appViper = v
}

// loadConfig decodes the layered configuration with CLI overrides applied.
func loadConfig() (*config.Config, error) {
	overrides := map[string]any{}
	if noCache {
		overrides["cache.enabled"] = false
	}
	return config.Load(appViper, overrides)
}
