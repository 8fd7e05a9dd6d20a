package cli

import (
	"fmt"

	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/config"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/tui"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	logFile    string
	logConsole bool
	serverURL  string
	username   string

	// cfg is loaded before every command
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "collabtask",
	Short: "CollabTask - shared real-time task board",
	Long: `CollabTask is a shared task board. Every change made by one participant
shows up for everyone else as it happens.

Run 'collabtask' without arguments to open the live board.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			logger.Warn("Failed to load config, using defaults", logger.Err(err))
			loaded = config.DefaultConfig()
		}
		cfg = loaded

		// Override with CLI flags if provided
		configChanged := false
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
			configChanged = true
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile = logFile
			configChanged = true
		}
		if cmd.Flags().Changed("log-console") {
			cfg.LogConsole = logConsole
			configChanged = true
		}
		if cmd.Flags().Changed("server") {
			cfg.ServerURL = serverURL
			configChanged = true
		}
		if cmd.Flags().Changed("user") {
			cfg.Username = username
			configChanged = true
		}

		// Save config if changed via CLI flags
		if configChanged {
			if err := cfg.Save(); err != nil {
				logger.Warn("Failed to save config", logger.Err(err))
			}
		}

		logConfig := logger.Config{
			Level:      logger.ParseLevel(cfg.LogLevel),
			FilePath:   cfg.LogFile,
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxAge:     7,
			MaxBackups: 5,
			Console:    cfg.LogConsole,
		}

		if err := logger.Init(logConfig); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.Info("CollabTask started", logger.F("command", cmd.Name()), logger.F("server", cfg.ServerURL))
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(cfg.ServerURL, cfg.Username)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Info("CollabTask exiting", logger.F("command", cmd.Name()))
		logger.Close()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newAPI returns a REST client whose writes are signed with the configured user
func newAPI() *client.API {
	return client.NewAPI(cfg.ServerURL)
}

func init() {
	// Add logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "log-console", false, "Enable console logging")

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL (saved to config)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Display name (saved to config)")

	// Add subcommands
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(watchCmd)
}
