package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwestrom/plotline"
	"github.com/mwestrom/plotline/query"
)

var showCypher bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a natural-language question about your story",
	Long: `Translates the question into a read-only Cypher query, runs it
against the graph, and phrases the results. With no argument it starts
an interactive session.

Examples:
  plotline ask "Who are the main characters?"
  plotline ask "Which scenes happen at the Meridian Tower?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			if len(args) > 0 {
				return askOnce(ctx, eng, strings.Join(args, " "))
			}
			return askLoop(ctx, eng)
		})
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights [story title]",
	Short: "Summarize story structure from the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			text, err := eng.Insights(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		})
	},
}

var connectionsCmd = &cobra.Command{
	Use:   "connections <character>",
	Short: "List everything directly linked to a character",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			rows, err := eng.CharacterConnections(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No connections found.")
				return nil
			}
			printRows(rows)
			return nil
		})
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags [category]",
	Short: "List tags in the graph, optionally filtered by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			var category string
			if len(args) > 0 {
				category = args[0]
			}
			rows, err := eng.TagsByCategory(ctx, category)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No tags found.")
				return nil
			}
			printRows(rows)
			return nil
		})
	},
}

func init() {
	askCmd.Flags().BoolVar(&showCypher, "show-cypher", false, "print the generated Cypher query")
}

func askOnce(ctx context.Context, eng *plotline.Engine, question string) error {
	ans, err := eng.Ask(ctx, question)
	if err != nil {
		return err
	}
	printAnswer(ans)
	return nil
}

func askLoop(ctx context.Context, eng *plotline.Engine) error {
	headline.Println("Ask anything about your story. Type \"quit\" to leave.")
	dim.Println("Try one of:")
	for _, q := range eng.SuggestedQuestions()[:4] {
		dim.Printf("  %s\n", q)
	}
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("? ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}

		ans, err := eng.Ask(ctx, question)
		if err != nil {
			bad.Printf("  %v\n\n", err)
			continue
		}
		printAnswer(ans)
		fmt.Println()
	}
}

func printAnswer(ans *query.Answer) {
	if showCypher && ans.Cypher != "" {
		dim.Printf("  %s\n", ans.Cypher)
	}
	if ans.Fallback {
		dim.Println("  (query generation failed, showing a name search instead)")
	}
	fmt.Println(ans.Text)
}

func printRows(rows []map[string]any) {
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, row[k]))
		}
		fmt.Printf("  %s\n", strings.Join(parts, "  "))
	}
}
