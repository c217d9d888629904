/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"

	"github.com/dailyjudge/apiserver/internal/db"
	"github.com/dailyjudge/apiserver/internal/mq"
	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/dailyjudge/apiserver/internal/storage"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd consumes evaluation events and archives judged submissions.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Archive judged submissions to object storage",
	Long: `Consumes submission.evaluated events from the message broker and writes
each judged submission to the configured object storage bucket.

	dailyjudge worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := setup()
		defer func() { _ = log.Sync() }()
		ctx := cmd.Context()

		broker, err := mq.Open(ctx, cfg.MQ, log)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("worker requires MQ_BACKEND to be rabbitmq or pubsub")
		}
		defer broker.Close()

		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("worker requires STORAGE_BACKEND to be minio or gcs")
		}

		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		archiver := services.NewSubmissionArchiver(objects, store.NewSubmissionRepository(conn), log)
		log.Info("worker consuming",
			zap.String("channel", cfg.MQ.EvaluatedChannel),
			zap.String("bucket", objects.Bucket()),
		)
		err = broker.Subscribe(ctx, cfg.MQ.EvaluatedChannel, archiver.HandleEvaluatedEvent)
		if errors.Is(err, context.Canceled) {
			log.Info("worker stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
