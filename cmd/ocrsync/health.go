package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

var (
	healthWait     bool
	healthAttempts uint
	healthDelay    time.Duration
)

// HealthReport is the health command's output.
type HealthReport struct {
	BaseURL  string                       `json:"base_url" yaml:"base_url"`
	Status   string                       `json:"status" yaml:"status"`
	Features []string                     `json:"features,omitempty" yaml:"features,omitempty"`
	Limiter  *providers.RateLimiterStatus `json:"limiter,omitempty" yaml:"limiter,omitempty"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the OCR service",
	Long: `Check the OCR service health endpoint.

With --wait the endpoint is polled until the service reports healthy or the
attempts run out (default from service.health_attempts).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := svcctx.ClientFrom(ctx)
		if client == nil {
			return errors.New("service client not initialized")
		}

		attempts := uint(1)
		if healthWait {
			attempts = healthAttempts
			if attempts == 0 {
				attempts = svcctx.ConfigFrom(ctx).Get().Service.HealthAttempts
			}
		}

		status, err := client.WaitHealthy(ctx, attempts, healthDelay)
		if err != nil {
			return err
		}
		report := HealthReport{
			BaseURL:  client.BaseURL(),
			Status:   status.Status,
			Features: status.Features,
		}
		if limiter := client.LimiterStatus(); limiter.RequestsPerMinute > 0 {
			report.Limiter = &limiter
		}
		return api.Output(report)
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthWait, "wait", false, "poll until the service is healthy")
	healthCmd.Flags().UintVar(&healthAttempts, "attempts", 0, "poll attempts with --wait (default from config)")
	healthCmd.Flags().DurationVar(&healthDelay, "delay", 2*time.Second, "delay between attempts")

	rootCmd.AddCommand(healthCmd)
}
