package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
	"github.com/KelvinWu602/blobshard/config"
	"github.com/KelvinWu602/blobshard/metastore"
	"github.com/KelvinWu602/blobshard/retriever"
	"github.com/KelvinWu602/blobshard/server"
)

type reconstructOptions struct {
	outDir  string
	seqAddr string
	length  int
	root    string
}

func newReconstructCommand(root *rootOptions) *cobra.Command {
	opts := reconstructOptions{}
	cmd := &cobra.Command{
		Use:   "reconstruct <blob-id>",
		Short: "Gather shards from the storage nodes and write the decoded blob",
		Long: `Gathers the shards of a blob from every configured storage node and writes
reconstructed_data_<blob-id>.bin. Coding parameters and the expected commitment root
come from the sequencer. When it cannot be reached, --length selects the configured
coding template and --root, if given, is checked against the decoded blob.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if opts.outDir != "" {
				cfg.Retrieval.OutputDir = opts.outDir
			}
			if opts.seqAddr != "" {
				cfg.Retrieval.Sequencer = opts.seqAddr
			}
			path, err := reconstruct(cmd.Context(), cfg, opts, args[0], logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "override retrieval.output_dir")
	cmd.Flags().StringVar(&opts.seqAddr, "sequencer", "", "override retrieval.sequencer")
	cmd.Flags().IntVar(&opts.length, "length", 0, "blob length, used when the sequencer is unreachable")
	cmd.Flags().StringVar(&opts.root, "root", "", "expected commitment root in hex, used when the sequencer is unreachable")
	return cmd
}

// reconstruct returns the path of the written blob. Nothing is written on error.
func reconstruct(ctx context.Context, cfg config.Config, opts reconstructOptions, arg string, logger *zap.Logger) (string, error) {
	id, err := blueprint.ParseBlobID(arg)
	if err != nil {
		return "", err
	}
	name := id.String()

	params, hasher, expected, err := resolveBlob(ctx, cfg, opts, name, logger)
	if err != nil {
		return "", err
	}

	var nodes []retriever.NodeClient
	for _, addr := range cfg.Retrieval.Nodes {
		c, err := server.DialNode(blueprint.NodeID(addr.ID), addr.Addr)
		if err != nil {
			// an undialable address counts as one unreachable node
			logger.Warn("skipping node", zap.Uint32("node", addr.ID), zap.Error(err))
			continue
		}
		defer c.Close()
		nodes = append(nodes, c)
	}

	r := retriever.New(retriever.Options{Timeout: cfg.Retrieval.Timeout, Hasher: hasher, Logger: logger})
	blob, err := r.Retrieve(ctx, name, nodes, params, expected)
	if err != nil {
		return "", err
	}
	path := filepath.Join(cfg.Retrieval.OutputDir, fmt.Sprintf("reconstructed_data_%s.bin", name))
	if err := writeFileAtomic(path, blob); err != nil {
		return "", err
	}
	logger.Info("blob reconstructed", zap.String("blob", name), zap.String("path", path), zap.Int("size", len(blob)))
	return path, nil
}

// resolveBlob asks the sequencer for the blob record and falls back to the flags.
func resolveBlob(ctx context.Context, cfg config.Config, opts reconstructOptions, name string, logger *zap.Logger) (blueprint.Params, commitment.Hasher, *commitment.Digest, error) {
	rec, err := blobInfo(ctx, cfg.Retrieval.Sequencer, name)
	if err == nil {
		hasher, err := commitment.HasherByName(rec.HashName)
		if err != nil {
			return blueprint.Params{}, commitment.Hasher{}, nil, err
		}
		return rec.Params, hasher, &rec.Root, nil
	}
	if opts.length <= 0 {
		return blueprint.Params{}, commitment.Hasher{}, nil, fmt.Errorf("resolving blob parameters (pass --length to use the configured coding): %w", err)
	}
	logger.Warn("sequencer unavailable, using the configured coding", zap.Error(err))

	params, err := blueprint.NewParams(opts.length, cfg.Coding.DataShards, cfg.Coding.ParityShards, cfg.Coding.ShardSize)
	if err != nil {
		return blueprint.Params{}, commitment.Hasher{}, nil, err
	}
	hasher, err := cfg.Coding.Hasher()
	if err != nil {
		return blueprint.Params{}, commitment.Hasher{}, nil, err
	}
	if opts.root == "" {
		return params, hasher, nil, nil
	}
	root, err := commitment.ParseDigest(opts.root)
	if err != nil {
		return blueprint.Params{}, commitment.Hasher{}, nil, fmt.Errorf("--root: %w", err)
	}
	return params, hasher, &root, nil
}

func blobInfo(ctx context.Context, addr, name string) (metastore.BlobRecord, error) {
	if addr == "" {
		return metastore.BlobRecord{}, fmt.Errorf("%w: no sequencer configured", blueprint.ErrTransport)
	}
	c, err := server.DialSequencer(addr, shutdownTimeout)
	if err != nil {
		return metastore.BlobRecord{}, err
	}
	defer c.Close()
	return c.BlobInfo(ctx, name)
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-reconstructed-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
