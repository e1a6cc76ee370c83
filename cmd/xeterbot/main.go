package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"xeterbot/internal/config"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:          "xeterbot",
		Short:        "xeterbot: chat-triggered Lua obfuscation bot",
		Long:         "xeterbot watches Discord and Telegram for !weak, !medium and !strong requests and replies with obfuscated Lua.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.xeterbot/config.json)")

	root.AddCommand(
		initCmd(),
		gatewayCmd(),
		chatCmd(),
		obfuscateCmd(),
		historyCmd(),
		configCmd(),
		doctorCmd(),
		daemonCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and swaps the global logger for one built
// from general.logLevel/logFormat/logFile. The returned func closes the
// log file, if any.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	l, closeLog, err := newLogger(cfg.General, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	logger = l
	return cfg, closeLog, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the work directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workDir := config.ExpandPath(cfg.General.WorkDir)
			if err := os.MkdirAll(workDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "work_dir", workDir)
			fmt.Println("Set DISCORD_TOKEN (and enable channels.discord) before running 'xeterbot gateway'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
