package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/afklabs/afkmon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change afkmon settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("File: %s\n", cfgPath)
		cmd.Printf("enabled: %v\n", cfg.Enabled)
		cmd.Printf("server_url: %s\n", cfg.ServerURL)
		cmd.Printf("sync_interval: %d\n", cfg.SyncInterval)
		cmd.Printf("listen_addr: %s\n", cfg.ListenAddr)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save the config file. A running daemon
picks the change up immediately.

Keys: enabled, server_url, sync_interval, listen_addr`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		switch key {
		case "enabled":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("enabled must be true or false")
			}
			cfg.Enabled = v
		case "server_url":
			cfg.ServerURL = value
		case "sync_interval":
			v, err := strconv.Atoi(value)
			if err != nil || v < 1 {
				return fmt.Errorf("sync_interval must be a positive integer")
			}
			cfg.SyncInterval = v
		case "listen_addr":
			cfg.ListenAddr = value
		default:
			return fmt.Errorf("unknown key %q (expected enabled, server_url, sync_interval or listen_addr)", key)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		cmd.Printf("%s = %s\n", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
