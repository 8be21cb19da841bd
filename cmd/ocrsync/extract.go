package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/ingest"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/session"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

const (
	modeAuto      = "auto"
	modeSingle    = "single"
	modeBatch     = "batch"
	modeMultipage = "multipage"
	modeDetect    = "detect"
)

var (
	extractMode      string
	extractTemplate  string
	extractPage      int
	extractDetection bool
	extractTimeout   time.Duration
	extractSave      bool
	extractExport    string
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE...",
	Short: "Extract form fields from documents",
	Long: `Extract form fields from one or more documents and print the merged form.

Modes:
  auto       one image: single; one PDF: multipage; several files: batch
  single     extract the first file (use --page for a PDF page)
  batch      extract every file concurrently and merge in file order
  multipage  extract every page of a PDF
  detect     return text detections and an overlay only

Examples:
  ocrsync extract id-card.jpg
  ocrsync extract front.png back.png --template ch
  ocrsync extract passport.pdf --save
  ocrsync extract card.png --mode single --detection -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := svcctx.LoggerFrom(ctx)

		docs, err := ingest.LoadAll(args, logger)
		if err != nil {
			return err
		}
		mode, err := resolveMode(extractMode, docs)
		if err != nil {
			return err
		}

		s, stop, err := startSession(ctx, extractTemplate)
		if err != nil {
			return err
		}
		defer stop()

		if err := s.Upload(ctx, docs...); err != nil {
			return err
		}
		logger.Info("extracting", "mode", mode, "files", len(docs), "session", s.ID())

		switch mode {
		case modeSingle:
			err = s.ExtractSingle(ctx, session.SingleOptions{Page: extractPage, WithDetection: extractDetection})
		case modeBatch:
			err = s.ProcessBatch(ctx)
		case modeMultipage:
			err = s.ExtractMultipage(ctx, "")
		case modeDetect:
			err = s.DetectOnly(ctx, "", extractPage)
		}
		if err != nil {
			return err
		}
		if err := settle(ctx, s, extractTimeout); err != nil {
			return err
		}

		if extractSave || extractExport != "" {
			path, err := saveExport(ctx, s, extractExport)
			if err != nil {
				return err
			}
			logger.Info("export saved", "path", path)
		}

		view, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		return api.Output(view)
	},
}

// resolveMode picks the extraction mode for docs and checks it fits.
func resolveMode(mode string, docs []*ingest.Document) (string, error) {
	switch mode {
	case modeAuto, "":
		switch {
		case len(docs) > 1:
			return modeBatch, nil
		case docs[0].Kind == ingest.KindPDF:
			return modeMultipage, nil
		default:
			return modeSingle, nil
		}
	case modeSingle, modeBatch, modeDetect:
		return mode, nil
	case modeMultipage:
		if docs[0].Kind != ingest.KindPDF {
			return "", fmt.Errorf("%s is not a PDF", docs[0].Name)
		}
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

func init() {
	extractCmd.Flags().StringVar(&extractMode, "mode", modeAuto, "extraction mode: auto, single, batch, multipage, detect")
	extractCmd.Flags().StringVarP(&extractTemplate, "template", "t", "", "form template (default from config)")
	extractCmd.Flags().IntVar(&extractPage, "page", 0, "PDF page for single or detect mode (1-indexed)")
	extractCmd.Flags().BoolVar(&extractDetection, "detection", false, "also request the detection overlay (single mode)")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 10*time.Minute, "how long to wait for the service")
	extractCmd.Flags().BoolVar(&extractSave, "save", false, "save an export to the home exports directory")
	extractCmd.Flags().StringVar(&extractExport, "export", "", "save an export to this path (.json or .yaml)")

	rootCmd.AddCommand(extractCmd)
}
