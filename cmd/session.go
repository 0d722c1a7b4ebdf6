package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyflow/studyflow/internal/records"
	"github.com/studyflow/studyflow/internal/response"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run a simulated study session",
	Long: "Runs one full session against the local catalog with a simulated\n" +
		"answerer, exercising planning, hydration, scheduling and outcome\n" +
		"recording end to end.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if secs, _ := cmd.Flags().GetInt("seconds"); secs > 0 {
			a.Cfg.SessionSeconds = secs
		}
		accuracy, _ := cmd.Flags().GetFloat64("accuracy")
		seed, _ := cmd.Flags().GetInt64("seed")
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		ctx := cmd.Context()
		ctrl, err := a.NewSession(ctx)
		if err != nil {
			return err
		}
		if err := ctrl.PrepareSession(ctx); err != nil {
			return err
		}

		action := response.ActionNone
		for {
			card, err := ctrl.NextCard(ctx, action)
			if err != nil {
				return err
			}
			if card == nil {
				break
			}

			if card.Doc.Kind != "question" {
				res, err := ctrl.SubmitResponse(ctx, records.CardRecord{
					CardID:      card.Item.CardID,
					CourseID:    card.Item.CourseID,
					Timestamp:   time.Now(),
					TimeSpentMs: 1000 + rng.Intn(3000),
				})
				if err != nil {
					return err
				}
				action = res.Action
				continue
			}

			// Answer until the card either clears or the processor moves on.
			attempts := 0
			for {
				correct := rng.Float64() < accuracy
				res, err := ctrl.SubmitResponse(ctx, records.QuestionRecord{
					CardRecord: records.CardRecord{
						CardID:      card.Item.CardID,
						CourseID:    card.Item.CourseID,
						Timestamp:   time.Now(),
						TimeSpentMs: 2000 + rng.Intn(6000),
					},
					IsCorrect:     correct,
					Performance:   records.ScalarPerformance(accuracy),
					PriorAttempts: attempts,
				})
				if err != nil {
					return err
				}
				if res.ShouldLoadNextCard {
					action = res.Action
					break
				}
				attempts++
			}
		}

		summary := ctrl.EndSession(ctx)
		fmt.Printf("session %s finished: %d questions, %d correct (%.0f%%) in %s\n",
			summary.SessionID, summary.Questions, summary.Correct,
			summary.Accuracy*100, summary.Duration.Round(time.Second))

		info := ctrl.GetDebugInfo()
		fmt.Printf("queues at end: new=%d review=%d failed=%d\n",
			info.NewQueueLen, info.ReviewQueueLen, info.FailedQueueLen)
		return nil
	},
}

func init() {
	sessionCmd.Flags().Int("seconds", 0, "Session time budget in seconds (overrides STUDYFLOW_SESSION_SECONDS)")
	sessionCmd.Flags().Float64("accuracy", 0.85, "Simulated answerer accuracy in [0,1]")
	sessionCmd.Flags().Int64("seed", 0, "Simulation rng seed (0 = random)")
}
