package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/auditor/internal/extract"
	"github.com/Yates-Labs/auditor/internal/minutes"
	"github.com/Yates-Labs/auditor/internal/orchestrator"
)

var (
	checkFile     string
	checkExport   string
	checkEndpoint string
	checkKey      string
	checkVerbose  bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check meeting minutes for compliance violations",
	Long: `Check a meeting-minutes file against Bank of Thailand regulations.

This command:
1. Extracts the text of the file (Azure Document Intelligence or local PDF/text)
2. Summarizes the minutes under Key Decisions, Critical Topics and Action Items
3. Matches every subtopic to the reference documents it concerns
4. Retrieves the matched document's regulation text for each subtopic
5. Judges each (subtopic, document) pair and prints the violations report

Examples:
  auditor check --file minutes.pdf
  auditor check --file minutes.pdf --endpoint https://<name>.cognitiveservices.azure.com --key <key>
  auditor check --file minutes.pdf --export report.md --verbose`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkFile, "file", "", "Meeting minutes file (pdf, txt, md)")
	checkCmd.Flags().StringVar(&checkExport, "export", "", "Write the analysis and violations report to a markdown file: --export <filename>")
	checkCmd.Flags().StringVar(&checkEndpoint, "endpoint", "", "Document Intelligence endpoint (overrides configuration)")
	checkCmd.Flags().StringVar(&checkKey, "key", "", "Document Intelligence key (overrides configuration)")
	checkCmd.Flags().BoolVar(&checkVerbose, "verbose", false, "Show retrieved evidence and diagnostics")
	_ = checkCmd.MarkFlagRequired("file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(checkFile)
	if err != nil {
		return fmt.Errorf("failed to read minutes file: %w", err)
	}
	file := extract.File{
		Name:        filepath.Base(checkFile),
		ContentType: mime.TypeByExtension(filepath.Ext(checkFile)),
		Data:        data,
	}

	return orchestrator.WithApp(ctx, cfg, logger, func(app *orchestrator.App) error {
		ex, err := app.Extractor(extract.Credentials{Endpoint: checkEndpoint, Key: checkKey})
		if err != nil {
			return err
		}

		if checkVerbose {
			fmt.Println(contextStyle.Render("→ Analyzing " + file.Name + "..."))
		}
		res, err := app.Pipeline.Run(ctx, ex, file)
		var verr *minutes.ValidationError
		if errors.As(err, &verr) {
			fmt.Println(errorStyle.Render(verr.Error()))
			return err
		}
		if err != nil {
			return fmt.Errorf("minutes check failed (%s): %w", res.Status, err)
		}

		renderResult(os.Stdout, res, checkVerbose)

		if checkExport != "" {
			if err := os.WriteFile(checkExport, []byte(res.Export(time.Now())), 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Println(successStyle.Render("✓ Exported report to " + checkExport))
		}
		return nil
	})
}
