package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/config"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/home"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
	"github.com/KrishnaChaitanya16/MosipDecode2025/version"
)

// skipServices marks commands that run without config or a service client.
const skipServices = "skip-services"

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool

	// logLevel is shared by the handler so config reloads can change it.
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "ocrsync",
	Short: "Aggregate OCR extractions into one form and verify it",
	Long: `ocrsync sends identity documents to an OCR service, merges the extracted
fields into a single form, and verifies submitted values against the document.

Extraction modes:
  - single image (optionally with a detection overlay)
  - batch of images, merged in file order
  - every page of a PDF
  - detection only

Results are kept consistent across modes: starting a new extraction, changing
the template or uploading new files discards every result it makes stale.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.ocrsync/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "ocrsync home directory (default: ~/.ocrsync)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	// Set output format and build services before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		api.SetOutputFormat(outputFormat)
		if cmd.Annotations[skipServices] == "true" {
			return nil
		}
		svcs, err := setupServices()
		if err != nil {
			return err
		}
		cmd.SetContext(svcctx.WithServices(cmd.Context(), svcs))
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

// setupServices loads .env and config, then builds the logger, template
// registry and service client.
func setupServices() (*svcctx.Services, error) {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	applyLogLevel(cfg)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	registry, err := schema.NewBuiltinRegistry(logger)
	if err != nil {
		return nil, err
	}
	templatesDir := cfg.Templates.Dir
	if templatesDir == "" {
		templatesDir = h.TemplatesPath()
	}
	n, err := registry.LoadDir(templatesDir)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		logger.Debug("loaded custom templates", "dir", templatesDir, "count", n)
	}

	client := providers.NewClient(cfg.Service.ClientConfig(logger))

	return &svcctx.Services{
		Logger:   logger,
		Config:   mgr,
		Registry: registry,
		Service:  client,
		Client:   client,
		Home:     h,
	}, nil
}

// applyLogLevel sets the shared level from config; --verbose wins.
func applyLogLevel(cfg *config.Config) {
	if verbose {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(cfg.Log.SlogLevel())
}
