// Package main provides the httpgate entry point: a reverse proxy routing
// HTTP/1.1 and gRPC traffic to devbox pods by host name.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/labring/httpgate/pkg/app"
	"github.com/labring/httpgate/pkg/config"
	"github.com/labring/httpgate/pkg/kube"
	"github.com/labring/httpgate/pkg/logging"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "httpgate",
		Short: "Route HTTP and gRPC traffic to devbox pods",
		Long: `httpgate is a reverse proxy for devbox pods.

A request for devbox-<id>-<port>.<domain> is forwarded to port <port> of the
pod backing the Devbox whose status.network.uniqueID is <id>. The routing
table is kept in sync by watching Devbox resources and their pods.

Every flag can also be set through an HTTPGATE_* environment variable,
for example HTTPGATE_LISTEN_ADDRESS.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         run,
	}

	config.BindFlags(cmd.Flags())
	// --kubeconfig from controller-runtime and glog's flags.
	cmd.Flags().AddGoFlagSet(flag.CommandLine)
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := logging.Configure(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	restCfg, err := kube.LoadConfig()
	if err != nil {
		return err
	}
	clients, err := kube.NewClients(restCfg)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, clients, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting httpgate",
		"version", version,
		"listen", cfg.ListenAddress,
		"admin", cfg.AdminAddress,
		"apiServer", restCfg.Host,
		"devboxResource", cfg.DevboxGVR().String(),
		"podSelector", cfg.PodLabelSelector,
	)

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("httpgate stopped")
	return nil
}

func main() {
	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		glog.Fatalf("httpgate: %v", err)
	}
}
