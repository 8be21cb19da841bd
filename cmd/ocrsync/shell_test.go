package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/config"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/home"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/ingest"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testServices(t *testing.T, svc providers.Service) context.Context {
	t.Helper()
	dir := t.TempDir()
	h, err := home.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager("", dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	reg, err := schema.NewBuiltinRegistry(nil)
	if err != nil {
		t.Fatal(err)
	}
	return svcctx.WithServices(context.Background(), &svcctx.Services{
		Config:   mgr,
		Registry: reg,
		Service:  svc,
		Home:     h,
	})
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, pngBytes, 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func newTestShell(t *testing.T, ctx context.Context) (*shell, *bytes.Buffer) {
	t.Helper()
	s, stop, err := startSession(ctx, "")
	if err != nil {
		t.Fatalf("startSession() error = %v", err)
	}
	t.Cleanup(stop)
	var out bytes.Buffer
	return &shell{session: s, out: &out, logger: svcctx.LoggerFrom(ctx)}, &out
}

func TestShell_Exec(t *testing.T) {
	mock := providers.NewMockService()
	ctx := testServices(t, mock)
	sh, out := newTestShell(t, ctx)
	paths := writeImages(t, "card-1.png", "card-2.png")

	steps := []string{
		"upload " + strings.Join(paths, " "),
		"batch",
		"wait",
		"set address 1 Main St",
		"show",
	}
	for _, line := range steps {
		if err := sh.exec(ctx, line); err != nil {
			t.Fatalf("exec(%q) error = %v", line, err)
		}
	}

	if mock.RequestCount() != 2 {
		t.Errorf("expected 2 service calls, got %d", mock.RequestCount())
	}
	shown := out.String()
	for _, want := range []string{"name: mock", "address: 1 Main St", "source: batch"} {
		if !strings.Contains(shown, want) {
			t.Errorf("show output missing %q:\n%s", want, shown)
		}
	}

	exportPath := filepath.Join(t.TempDir(), "result.json")
	if err := sh.exec(ctx, "export "+exportPath); err != nil {
		t.Fatalf("export error = %v", err)
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Errorf("export not written: %v", err)
	}

	if err := sh.exec(ctx, "export"); err != nil {
		t.Fatalf("export to home error = %v", err)
	}
	entries, _ := os.ReadDir(svcctx.HomeFrom(ctx).ExportsDir())
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "batch_") {
		t.Errorf("unexpected exports dir contents: %v", entries)
	}
}

func TestShell_Errors(t *testing.T) {
	ctx := testServices(t, providers.NewMockService())
	sh, _ := newTestShell(t, ctx)

	tests := []string{
		"bogus",
		"upload",
		"template xx",
		"fanout 0",
		"retry nothing",
		"extract a b",
		"set name",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			if err := sh.exec(ctx, line); err == nil {
				t.Errorf("exec(%q) expected error", line)
			}
		})
	}

	if err := sh.exec(ctx, "quit"); !errors.Is(err, errQuit) {
		t.Errorf("quit returned %v", err)
	}
	if err := sh.exec(ctx, "   "); err != nil {
		t.Errorf("blank line returned %v", err)
	}
	if err := sh.exec(ctx, "fanout 5"); err != nil || sh.session.BatchFanout() != 5 {
		t.Errorf("fanout not applied: %v", err)
	}
}

func TestShell_Run(t *testing.T) {
	ctx := testServices(t, providers.NewMockService())
	sh, out := newTestShell(t, ctx)
	sh.in = strings.NewReader("help\nnope\nquit\nshow\n")
	sh.prompt = "> "

	done := make(chan error, 1)
	go func() { done <- sh.run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	got := out.String()
	if !strings.Contains(got, "upload FILE...") {
		t.Error("help text not printed")
	}
	if !strings.Contains(got, `error: unknown command "nope"`) {
		t.Errorf("unknown command not reported:\n%s", got)
	}
	if strings.Contains(got, "session_id") {
		t.Error("commands after quit should not run")
	}
}

func TestDocAndPage(t *testing.T) {
	tests := []struct {
		args    []string
		name    string
		page    int
		wantErr bool
	}{
		{nil, "", 0, false},
		{[]string{"a.pdf"}, "a.pdf", 0, false},
		{[]string{"a.pdf", "2"}, "a.pdf", 2, false},
		{[]string{"3"}, "", 3, false},
		{[]string{"a.pdf", "0"}, "", 0, true},
		{[]string{"a.pdf", "b.pdf"}, "", 0, true},
	}
	for _, tt := range tests {
		name, page, err := docAndPage(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("docAndPage(%v) error = %v", tt.args, err)
			continue
		}
		if !tt.wantErr && (name != tt.name || page != tt.page) {
			t.Errorf("docAndPage(%v) = %q, %d", tt.args, name, page)
		}
	}
}

func TestResolveMode(t *testing.T) {
	img, _ := ingest.FromBytes("a.png", pngBytes, nil)
	pdf, _ := ingest.FromBytes("a.pdf", []byte("%PDF-1.4 x"), nil)

	tests := []struct {
		mode    string
		docs    []*ingest.Document
		want    string
		wantErr bool
	}{
		{modeAuto, []*ingest.Document{img}, modeSingle, false},
		{modeAuto, []*ingest.Document{pdf}, modeMultipage, false},
		{modeAuto, []*ingest.Document{img, pdf}, modeBatch, false},
		{modeDetect, []*ingest.Document{img}, modeDetect, false},
		{modeMultipage, []*ingest.Document{img}, "", true},
		{"fast", []*ingest.Document{img}, "", true},
	}
	for _, tt := range tests {
		got, err := resolveMode(tt.mode, tt.docs)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("resolveMode(%s) = %q, %v", tt.mode, got, err)
		}
	}
}

func TestCollectValues(t *testing.T) {
	file := filepath.Join(t.TempDir(), "values.yaml")
	if err := os.WriteFile(file, []byte("name: Jane\nage: \"31\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	values, err := collectValues(file, []string{"age=32", "address=1 Main St, Apt 2"})
	if err != nil {
		t.Fatalf("collectValues() error = %v", err)
	}
	if values["name"] != "Jane" || values["age"] != "32" || values["address"] != "1 Main St, Apt 2" {
		t.Errorf("collectValues() = %v", values)
	}

	if _, err := collectValues("", []string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
}
