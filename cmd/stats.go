package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog, schedule and rating statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		courseID := a.Cfg.CourseID

		cards, err := a.Store.CardCount(ctx, courseID)
		if err != nil {
			return err
		}
		fresh, err := a.Store.NewCardIDs(ctx, courseID, 1_000_000)
		if err != nil {
			return err
		}
		reviews, err := a.Store.ScheduledReviews(ctx, courseID)
		if err != nil {
			return err
		}
		due := 0
		now := time.Now()
		for _, r := range reviews {
			if !r.ReviewTime.After(now) {
				due++
			}
		}
		reg, err := a.Store.GetRegistration(ctx, courseID, a.Cfg.UserID)
		if err != nil {
			return err
		}

		fmt.Printf("course %s, user %s\n", courseID, a.Cfg.UserID)
		fmt.Printf("  cards: %d total, %d unseen\n", cards, len(fresh))
		fmt.Printf("  reviews: %d scheduled, %d due\n", len(reviews), due)
		fmt.Printf("  rating: %.0f", reg.Elo)
		if len(reg.Tags) > 0 {
			fmt.Printf(" (%d tag ratings)", len(reg.Tags))
		}
		fmt.Println()

		for _, id := range a.Strategies() {
			st, err := a.Store.StrategyState(ctx, id)
			if err != nil || st == nil {
				continue
			}
			fmt.Printf("  strategy %s: weight=%.3f, %d adjustment(s)\n",
				id, st.CurrentWeight, len(st.History))
		}
		return nil
	},
}
