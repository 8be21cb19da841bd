// Package svcctx provides service context for dependency injection via context.
// It is separate from cmd so library packages can extract services without
// importing the CLI.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/config"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/home"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Logger   *slog.Logger
	Config   *config.Manager
	Registry *schema.Registry
	Service  providers.Service
	// Client is the HTTP implementation behind Service, when one is used.
	Client   *providers.Client
	Home     *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// RegistryFrom extracts the template registry from context.
func RegistryFrom(ctx context.Context) *schema.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// ServiceFrom extracts the OCR service from context.
func ServiceFrom(ctx context.Context) providers.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Service
	}
	return nil
}

// ClientFrom extracts the HTTP service client from context.
func ClientFrom(ctx context.Context) *providers.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Client
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
