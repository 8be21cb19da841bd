package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/session"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

// startSession creates a session from the services in ctx and runs its
// loop until the returned stop func is called.
func startSession(ctx context.Context, template string) (*session.Session, func(), error) {
	svcs := svcctx.ServicesFrom(ctx)
	if svcs == nil {
		return nil, nil, errors.New("services not initialized")
	}
	cfg := svcs.Config.Get()
	if template == "" {
		template = cfg.Session.Template
	}

	s, err := session.New(session.Config{
		Service:      svcs.Service,
		Registry:     svcs.Registry,
		Template:     template,
		BatchFanout:  cfg.Session.BatchFanout,
		RawTextHints: cfg.Session.RawTextHints,
		Logger:       svcs.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
	stop := func() {
		cancel()
		s.Close()
		<-done
	}
	return s, stop, nil
}

// settle waits for every dispatched call of s to land.
func settle(ctx context.Context, s *session.Session, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.Settle(ctx); err != nil {
		return fmt.Errorf("waiting for service calls: %w", err)
	}
	return nil
}

// saveExport writes the session export to path, or to the exports
// directory under home when path is empty. Returns the path written.
func saveExport(ctx context.Context, s *session.Session, path string) (string, error) {
	exp, err := s.Export(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		h := svcctx.HomeFrom(ctx)
		if h == nil {
			return "", errors.New("home directory not initialized")
		}
		path = h.ExportPath(exp.Type, exp.Timestamp, api.GetOutputFormat().Extension())
	}
	if err := api.WriteFile(path, exp); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
