package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/orchestrator"
)

var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question about Bank of Thailand regulations",
	Long: `Ask a single question and print the answer.

The question is classified first:
- exact_section_query: every "มาตรา <n>" in the question is looked up exactly
- law_query:           the closest law sections are retrieved and summarized
- announcement_query:  the closest announcement chunks are retrieved and summarized
- general_question:    answered formally in Thai without retrieval

Examples:
  auditor ask "มาตรา 98 ว่าด้วยเรื่องอะไร"
  auditor ask "ประกาศเรื่องการบริหารความเสี่ยงด้านไอทีกำหนดอะไรบ้าง" --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askVerbose, "verbose", false, "Show the classified label and the retrieved information")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return orchestrator.WithApp(ctx, cfg, logger, func(app *orchestrator.App) error {
		renderQuestion(os.Stdout, question)
		reply := app.Chatbot.Turn(ctx, chatbot.NewHistory(), question)
		renderReply(os.Stdout, reply, askVerbose)
		return nil
	})
}
