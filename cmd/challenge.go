/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/dailyjudge/apiserver/internal/db"
	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var challengeDate string

// challengeCmd groups the scheduled daily challenge jobs.
var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Manage daily challenges",
}

var challengeGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create the daily challenge for a UTC day if it does not exist",
	Long: `Creates the daily challenge for the given UTC day (default: today).
Running it again for the same day is a no-op.

	dailyjudge challenge generate --date 2026-03-14
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date := time.Now().UTC()
		if challengeDate != "" {
			parsed, err := time.Parse(time.DateOnly, challengeDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", challengeDate, err)
			}
			date = parsed
		}

		cfg, log := setup()
		defer func() { _ = log.Sync() }()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := services.NewDailyChallengeService(
			store.NewDailyChallengeRepository(conn),
			store.NewProblemRepository(conn),
			log,
		)
		challenge, err := svc.GenerateIfAbsent(cmd.Context(), date)
		if err != nil {
			log.Error("daily challenge generation failed", zap.Error(err))
			return err
		}
		log.Info("daily challenge ready",
			zap.Time("date", challenge.Date),
			zap.Int("problem_id", challenge.ProblemID),
			zap.String("difficulty", string(challenge.Difficulty)),
		)
		return nil
	},
}

var challengeDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Mark expired daily challenges inactive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := setup()
		defer func() { _ = log.Sync() }()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := services.NewDailyChallengeService(
			store.NewDailyChallengeRepository(conn),
			store.NewProblemRepository(conn),
			log,
		)
		count, err := svc.DeactivateExpired(cmd.Context(), time.Now())
		if err != nil {
			log.Error("deactivating expired challenges failed", zap.Error(err))
			return err
		}
		log.Info("expired challenges deactivated", zap.Int64("count", count))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(challengeCmd)
	challengeCmd.AddCommand(challengeGenerateCmd)
	challengeCmd.AddCommand(challengeDeactivateCmd)

	challengeGenerateCmd.Flags().StringVar(&challengeDate, "date", "", "UTC day to generate, formatted YYYY-MM-DD")
}
