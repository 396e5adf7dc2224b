package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/KelvinWu602/blobshard/distributor"
	"github.com/KelvinWu602/blobshard/feed"
	"github.com/KelvinWu602/blobshard/metastore"
	"github.com/KelvinWu602/blobshard/protos"
	"github.com/KelvinWu602/blobshard/sequencer"
	"github.com/KelvinWu602/blobshard/server"
)

const shutdownTimeout = 5 * time.Second

func newSequencerCommand(root *rootOptions) *cobra.Command {
	var grpcListen, httpListen string
	cmd := &cobra.Command{
		Use:   "sequencer",
		Short: "Encode committed blobs and stream their shards to storage nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if grpcListen != "" {
				cfg.Sequencer.GRPCListen = grpcListen
			}
			if httpListen != "" {
				cfg.Sequencer.HTTPListen = httpListen
			}

			hasher, err := cfg.Coding.Hasher()
			if err != nil {
				return err
			}
			index, err := metastore.Open(metastore.Options{Path: cfg.Sequencer.DBPath, Logger: logger})
			if err != nil {
				return err
			}
			defer index.Close()

			hub := distributor.NewHub(cfg.Sequencer.QueueCapacity, logger)
			defer hub.Close()
			seq, err := sequencer.New(index, hub, sequencer.NewRoster(cfg.Sequencer.NodeIDs()...), sequencer.Options{
				Coding: sequencer.Coding{
					DataShards:   cfg.Coding.DataShards,
					ParityShards: cfg.Coding.ParityShards,
					ShardSize:    cfg.Coding.ShardSize,
				},
				Hasher:        hasher,
				QueueCapacity: cfg.Sequencer.QueueCapacity,
				Seed:          cfg.Sequencer.Seed,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			events := feed.NewChannel(cfg.Sequencer.QueueCapacity)
			defer events.Close()

			lis, err := net.Listen("tcp", cfg.Sequencer.GRPCListen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Sequencer.GRPCListen, err)
			}
			grpcServer := server.New(logger)
			grpcServer.Register(func(r grpc.ServiceRegistrar) {
				protos.RegisterSequencerServer(r, server.NewSequencerServer(seq, logger))
			})
			httpServer := &http.Server{
				Addr:              cfg.Sequencer.HTTPListen,
				Handler:           feed.NewHTTPHandler(events, seq, logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return seq.Run(ctx, events)
			})
			g.Go(func() error {
				// closing the hub ends the Subscribe streams so the gRPC server can stop
				<-ctx.Done()
				hub.Close()
				return nil
			})
			g.Go(func() error {
				return grpcServer.Serve(ctx, lis)
			})
			g.Go(func() error {
				return serveHTTP(ctx, httpServer, logger)
			})
			logger.Info("sequencer started",
				zap.String("grpc", lis.Addr().String()),
				zap.String("http", cfg.Sequencer.HTTPListen),
				zap.Uint32s("nodes", cfg.Sequencer.Nodes))
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&grpcListen, "grpc-listen", "", "override sequencer.grpc_listen")
	cmd.Flags().StringVar(&httpListen, "http-listen", "", "override sequencer.http_listen")
	return cmd
}

// serveHTTP runs srv until ctx ends, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http on %s: %w", srv.Addr, err)
	case <-ctx.Done():
		logger.Info("stopping http server", zap.String("address", srv.Addr))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
