package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/config"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/ingest"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/session"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

var shellTemplate string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run an interactive extraction session",
	Long: `Run an interactive extraction session.

Commands are read one per line. Extraction and verification run in the
background; use "wait" to block until they land and "show" to print the
session. Type "help" for the command list.

Config file changes are picked up while the shell runs: session.batch_fanout
applies to the next batch and log.level applies immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, stop, err := startSession(ctx, shellTemplate)
		if err != nil {
			return err
		}
		defer stop()

		if mgr := svcctx.ConfigFrom(ctx); mgr != nil && mgr.ConfigFileUsed() != "" {
			logger := svcctx.LoggerFrom(ctx)
			mgr.OnChange(func(cfg *config.Config) {
				s.SetBatchFanout(cfg.Session.BatchFanout)
				applyLogLevel(cfg)
				logger.Info("config reloaded", "batch_fanout", s.BatchFanout(), "log_level", logLevel.Level())
			})
			mgr.WatchConfig()
		}

		sh := &shell{
			session: s,
			in:      cmd.InOrStdin(),
			out:     cmd.OutOrStdout(),
			logger:  svcctx.LoggerFrom(ctx),
			prompt:  "ocrsync> ",
		}
		return sh.run(ctx)
	},
}

func init() {
	shellCmd.Flags().StringVarP(&shellTemplate, "template", "t", "", "initial form template (default from config)")
	rootCmd.AddCommand(shellCmd)
}

const shellHelp = `commands:
  upload FILE...          replace the uploaded files
  capture FILE            replace the files with one captured image
  remove NAME             remove an uploaded file
  template ID             switch the form template
  extract [NAME] [PAGE]   extract one document
  overlay [NAME] [PAGE]   extract one document with detection overlay
  multipage [NAME]        extract every page of a PDF
  batch                   extract every uploaded file
  detect [NAME] [PAGE]    detection only
  retry KEY               re-run one unit
  set FIELD VALUE...      override a field
  clear FIELD             drop an override
  verify [NAME]           verify the current form against a document
  wait                    wait for background calls
  show                    print the session
  export [PATH]           save the session results
  fanout N                set the batch concurrency
  reset                   start over
  quit                    exit
`

// shell reads commands and applies them to one session.
type shell struct {
	session *session.Session
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	prompt  string
}

var errQuit = errors.New("quit")

func (sh *shell) run(ctx context.Context) error {
	scanner := bufio.NewScanner(sh.in)
	for {
		fmt.Fprint(sh.out, sh.prompt)
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		err := sh.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// exec runs one command line.
func (sh *shell) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	s := sh.session

	switch cmd {
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit

	case "upload":
		if len(args) == 0 {
			return errors.New("usage: upload FILE...")
		}
		docs, err := ingest.LoadAll(args, sh.logger)
		if err != nil {
			return err
		}
		return s.Upload(ctx, docs...)
	case "capture":
		if len(args) != 1 {
			return errors.New("usage: capture FILE")
		}
		doc, err := ingest.Load(args[0], sh.logger)
		if err != nil {
			return err
		}
		return s.CameraCapture(ctx, doc)
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove NAME")
		}
		return s.RemoveFile(ctx, args[0])
	case "template":
		if len(args) != 1 {
			return errors.New("usage: template ID")
		}
		return s.ChangeTemplate(ctx, args[0])

	case "extract", "overlay":
		name, page, err := docAndPage(args)
		if err != nil {
			return err
		}
		return s.ExtractSingle(ctx, session.SingleOptions{Document: name, Page: page, WithDetection: cmd == "overlay"})
	case "multipage":
		name, _, err := docAndPage(args)
		if err != nil {
			return err
		}
		return s.ExtractMultipage(ctx, name)
	case "batch":
		return s.ProcessBatch(ctx)
	case "detect":
		name, page, err := docAndPage(args)
		if err != nil {
			return err
		}
		return s.DetectOnly(ctx, name, page)
	case "retry":
		if len(args) != 1 {
			return errors.New("usage: retry KEY")
		}
		return s.Retry(ctx, args[0])

	case "set":
		if len(args) < 2 {
			return errors.New("usage: set FIELD VALUE...")
		}
		return s.SetField(ctx, schema.FieldID(args[0]), strings.Join(args[1:], " "))
	case "clear":
		if len(args) != 1 {
			return errors.New("usage: clear FIELD")
		}
		return s.ClearField(ctx, schema.FieldID(args[0]))
	case "verify":
		name, _, err := docAndPage(args)
		if err != nil {
			return err
		}
		return s.Verify(ctx, name, nil)

	case "wait":
		return settle(ctx, s, 10*time.Minute)
	case "show":
		view, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		return api.OutputTo(sh.out, api.GetOutputFormat(), view)
	case "export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		written, err := saveExport(ctx, s, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "saved %s\n", written)
		return nil
	case "fanout":
		if len(args) != 1 {
			return errors.New("usage: fanout N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid fanout %q", args[0])
		}
		s.SetBatchFanout(n)
		return nil
	case "reset":
		return s.Reset(ctx)
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// docAndPage parses optional [NAME] [PAGE] arguments.
func docAndPage(args []string) (string, int, error) {
	var name string
	var page int
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			if n < 1 {
				return "", 0, fmt.Errorf("invalid page %q", a)
			}
			page = n
			continue
		}
		if name != "" {
			return "", 0, fmt.Errorf("unexpected argument %q", a)
		}
		name = a
	}
	return name, page, nil
}
