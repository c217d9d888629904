/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"net/http"

	"github.com/dailyjudge/apiserver/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the dailyjudge backend server",
	Long: `Starts the dailyjudge backend server. Usage:

	dailyjudge server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := setup()
		defer func() { _ = log.Sync() }()

		srv, err := server.New(cmd.Context(), cfg, log)
		if err != nil {
			log.Error("failed to start server", zap.Error(err))
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			log.Error("server error", zap.Error(err))
			_ = srv.Shutdown()
			return err
		case <-cmd.Context().Done():
			log.Info("shutting down")
			return srv.Shutdown()
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
