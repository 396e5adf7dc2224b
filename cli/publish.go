package cli

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/feed"
)

func newPublishCommand(root *rootOptions) *cobra.Command {
	var commitmentHex, file, endpoint string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Post a blob to the sequencer feed endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			id, err := blueprint.ParseBlobID(commitmentHex)
			if err != nil {
				return fmt.Errorf("--commitment: %w", err)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = localEndpoint(cfg.Sequencer.HTTPListen)
			}
			if err := feed.Publish(cmd.Context(), nil, endpoint, id, data); err != nil {
				return err
			}
			logger.Info("blob published", zap.String("blob", id.String()), zap.Int("size", len(data)), zap.String("endpoint", endpoint))
			return nil
		},
	}
	cmd.Flags().StringVar(&commitmentHex, "commitment", "", "0x-prefixed 48-byte blob commitment")
	cmd.Flags().StringVar(&file, "file", "", "path of the blob to publish")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "feed endpoint (defaults to sequencer.http_listen)")
	cmd.MarkFlagRequired("commitment")
	cmd.MarkFlagRequired("file")
	return cmd
}

// localEndpoint turns a listen address such as ":8080" into one a client can dial.
func localEndpoint(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
