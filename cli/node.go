package cli

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/node"
	"github.com/KelvinWu602/blobshard/protos"
	"github.com/KelvinWu602/blobshard/server"
)

func newNodeCommand(root *rootOptions) *cobra.Command {
	var (
		id         uint32
		grpcListen string
		seqAddr    string
	)
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Store the shards assigned to one node and serve them for retrieval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cmd.Flags().Changed("id") {
				cfg.Node.ID = id
			}
			if grpcListen != "" {
				cfg.Node.GRPCListen = grpcListen
			}
			if seqAddr != "" {
				cfg.Node.Sequencer = seqAddr
			}
			nodeID := blueprint.NodeID(cfg.Node.ID)
			logger = logger.With(zap.Uint32("node", cfg.Node.ID))

			store, closeStore, err := getShardStore(cmd.Context(), cfg.Node, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			n, err := node.New(nodeID, store, node.Options{Backoff: cfg.Node.Backoff, Logger: logger})
			if err != nil {
				return err
			}
			source, err := server.DialSequencer(cfg.Node.Sequencer, 5*time.Second)
			if err != nil {
				return err
			}
			defer source.Close()

			lis, err := net.Listen("tcp", cfg.Node.GRPCListen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Node.GRPCListen, err)
			}
			grpcServer := server.New(logger)
			grpcServer.Register(func(r grpc.ServiceRegistrar) {
				protos.RegisterStorageNodeServer(r, server.NewStorageNodeServer(n, logger))
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return n.Run(ctx, source)
			})
			g.Go(func() error {
				return grpcServer.Serve(ctx, lis)
			})
			if cfg.Node.MetricsListen != "" {
				gin.SetMode(gin.ReleaseMode)
				router := gin.New()
				router.GET("/metrics", gin.WrapH(promhttp.Handler()))
				metricsServer := &http.Server{
					Addr:              cfg.Node.MetricsListen,
					Handler:           router,
					ReadHeaderTimeout: 10 * time.Second,
				}
				g.Go(func() error {
					return serveHTTP(ctx, metricsServer, logger)
				})
			}
			logger.Info("storage node started",
				zap.String("grpc", lis.Addr().String()),
				zap.String("sequencer", cfg.Node.Sequencer),
				zap.String("backend", cfg.Node.Backend))
			return g.Wait()
		},
	}
	cmd.Flags().Uint32Var(&id, "id", 0, "override node.id")
	cmd.Flags().StringVar(&grpcListen, "grpc-listen", "", "override node.grpc_listen")
	cmd.Flags().StringVar(&seqAddr, "sequencer", "", "override node.sequencer")
	return cmd
}
