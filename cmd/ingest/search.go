package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/app"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/query"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/service"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the index",
	Long: `Runs a retrieval against the index and prints the ranked chunks.
Inline hints restrict the search: "heading: X", "from file X" or
"keyword X".`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := vectorstore.Filter{}
	if hint, ok := query.ParseFilterHint(args[0]); ok {
		cmd.Printf("filter: %s\n", hint)
		filter = hint
	}
	resp, err := service.NewSearchService(a.Retriever).Search(ctx, args[0], filter)
	if err != nil {
		return err
	}

	cmd.Printf("outcome: %s\n", resp.Outcome)
	if resp.Outcome == "fallback" {
		cmd.Printf("variants: %s\n", strings.Join(resp.Variants, " | "))
	}
	for i, r := range resp.Results {
		cmd.Printf("%d. [%.3f] %s #%d\n", i+1, r.Score, r.Source, r.ChunkIndex)
		cmd.Printf("   %s\n", preview(r.TextContent, 160))
	}
	return nil
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n]) + "..."
	}
	return text
}
