package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/baton/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stages over HTTP",
	Long: `Starts an HTTP server exposing /function/<stage> for every stage of the graph,
or only for --stage in a one-stage-per-function deployment. The trigger function is
always served.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			env.Config.Listen, _ = cmd.Flags().GetString("listen")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := env.Pipeline(ctx)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", env.Config.Listen)
		if err != nil {
			return err
		}
		return cli.Serve(ctx, env, p, ln, env.Config.Stage)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("stage", "", "Serve only this stage")
	serveCmd.Flags().StringP("listen", "l", ":8080", "Address to listen on")
}
