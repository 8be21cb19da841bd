package svcctx

import (
	"context"
	"log/slog"
	"testing"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/home"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

func TestServicesFrom(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		ctx := context.Background()
		if ServicesFrom(ctx) != nil {
			t.Error("expected nil services")
		}
		if RegistryFrom(ctx) != nil || ServiceFrom(ctx) != nil || ClientFrom(ctx) != nil || HomeFrom(ctx) != nil || ConfigFrom(ctx) != nil {
			t.Error("extractors should return nil without services")
		}
		if LoggerFrom(ctx) != slog.Default() {
			t.Error("LoggerFrom should fall back to slog.Default")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		reg := schema.NewRegistry(nil)
		mock := providers.NewMockService()
		h, _ := home.New(t.TempDir())
		logger := slog.Default().With("test", true)

		ctx := WithServices(context.Background(), &Services{
			Logger:   logger,
			Registry: reg,
			Service:  mock,
			Home:     h,
		})

		if RegistryFrom(ctx) != reg {
			t.Error("registry not returned")
		}
		if ServiceFrom(ctx) != mock {
			t.Error("service not returned")
		}
		if HomeFrom(ctx) != h {
			t.Error("home not returned")
		}
		if LoggerFrom(ctx) != logger {
			t.Error("logger not returned")
		}
	})
}
