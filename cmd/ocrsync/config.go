package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/config"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/home"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ocrsync configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default config file to the home directory",
	Annotations: map[string]string{skipServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", h.ConfigPath())
		return nil
	},
}

// ConfigView is the config show command's output.
type ConfigView struct {
	File    string         `json:"file,omitempty" yaml:"file,omitempty"`
	Entries []config.Entry `json:"entries" yaml:"entries"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration values",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := svcctx.ConfigFrom(cmd.Context())
		if mgr == nil {
			return errors.New("config not initialized")
		}
		return api.Output(ConfigView{File: mgr.ConfigFileUsed(), Entries: mgr.Entries()})
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := svcctx.ConfigFrom(cmd.Context())
		if mgr == nil {
			return errors.New("config not initialized")
		}
		v, err := mgr.Value(args[0])
		if err != nil {
			return err
		}
		return api.Output(map[string]any{args[0]: v})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}
