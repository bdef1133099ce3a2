package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/orchestrator"
)

var chatVerbose bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive compliance chat",
	Long: `Start an interactive chat session. Every question is classified and
answered from the knowledge graph; the conversation is kept for the session.

Type "exit" or press Ctrl-D to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatVerbose, "verbose", false, "Show the classified label and the retrieved information")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return orchestrator.WithApp(ctx, cfg, logger, func(app *orchestrator.App) error {
		history := chatbot.NewHistory()
		fmt.Println(headerStyle.Render("Auditor Assistant"))
		fmt.Println(contextStyle.Render("Ask about Bank of Thailand laws and announcements. Type \"exit\" to quit."))

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for {
			fmt.Print(questionStyle.Render("> "))
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				return nil
			}

			reply := app.Chatbot.Turn(ctx, history, text)
			fmt.Println()
			renderReply(os.Stdout, reply, chatVerbose)
		}
	})
}
