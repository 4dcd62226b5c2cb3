package main

import (
	"errors"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	grpcserver "github.com/4tyam/everyday/internal/server/grpc"
	"github.com/4tyam/everyday/internal/uploader"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drain the upload queue periodically and serve gRPC health",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if a.userID == "" {
				return errSignedOut
			}
			ctx := cmd.Context()
			u, err := a.uploader(ctx)
			if err != nil {
				return err
			}
			srv, err := grpcserver.New(a.sessions, grpcserver.Options{
				CertFile:   a.cfg.TLSCert,
				KeyFile:    a.cfg.TLSKey,
				Reflection: a.cfg.Dev,
			}, a.log.Named("grpc"))
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", a.cfg.ListenAddr)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(gctx, lis) })
			g.Go(func() error {
				err := u.Run(gctx, a.userID, a.cfg.SyncInterval, func(res uploader.Result, err error) {
					srv.SetSyncHealthy(err == nil)
					if err == nil && res != (uploader.Result{}) {
						a.log.Info("drained",
							zap.Int("synced", res.Synced),
							zap.Int("retried", res.Retried),
							zap.Int("failed", res.Failed),
							zap.Int("skipped", res.Skipped))
					}
				})
				if errors.Is(err, gctx.Err()) {
					return nil
				}
				return err
			})
			return g.Wait()
		}),
	}
	f := cmd.Flags()
	f.StringVar(&opts.cfg.ListenAddr, "addr", opts.cfg.ListenAddr, "gRPC listen address")
	f.StringVar(&opts.cfg.TLSCert, "tls-cert", opts.cfg.TLSCert, "TLS certificate file")
	f.StringVar(&opts.cfg.TLSKey, "tls-key", opts.cfg.TLSKey, "TLS key file")
	f.DurationVar(&opts.cfg.SyncInterval, "interval", opts.cfg.SyncInterval, "drain interval")
	return cmd
}
