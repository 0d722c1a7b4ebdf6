package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyflow/studyflow/internal/content"
)

type importCard struct {
	CardID string   `json:"cardId"`
	Kind   string   `json:"kind"`
	Body   string   `json:"body"`
	Tags   []string `json:"tags"`
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import cards into the course catalog",
	Long:  "Reads a JSON array of cards and upserts them into the configured course.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		var cards []importCard
		if err := json.Unmarshal(data, &cards); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		ctx := cmd.Context()
		for _, c := range cards {
			if c.CardID == "" {
				return fmt.Errorf("card with empty cardId in %s", args[0])
			}
			kind := c.Kind
			if kind == "" {
				kind = "question"
			}
			if err := a.Store.PutCard(ctx, content.CardDocument{
				CardID:   c.CardID,
				CourseID: a.Cfg.CourseID,
				Kind:     kind,
				Body:     c.Body,
				Tags:     c.Tags,
			}); err != nil {
				return err
			}
		}

		fmt.Printf("imported %d card(s) into course %s\n", len(cards), a.Cfg.CourseID)
		return nil
	},
}
