package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/metastore"
)

const pushTimeout = 5 * time.Second

// RecordSource looks up ingested blobs. *sequencer.Sequencer implements it.
type RecordSource interface {
	Record(ctx context.Context, blobName string) (metastore.BlobRecord, error)
}

// BlobPayload is one blob in a POST /v1/blobs body.
type BlobPayload struct {
	Commitment string `json:"commitment" binding:"required"`
	Data       string `json:"data" binding:"required"`
}

// PublishRequest is the POST /v1/blobs body.
type PublishRequest struct {
	Blobs []BlobPayload `json:"blobs" binding:"required,min=1,dive"`
}

// RecordResponse is the GET /v1/blobs/:name body.
type RecordResponse struct {
	BlobName       string `json:"blob_name"`
	VersionedHash  string `json:"versioned_hash"`
	Root           string `json:"root"`
	Hash           string `json:"hash"`
	DataShards     int    `json:"data_shards"`
	ParityShards   int    `json:"parity_shards"`
	ShardSize      int    `json:"shard_size"`
	OriginalLength int    `json:"original_length"`
	CreatedAt      string `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPHandler accepts blobs over HTTP and pushes them into a Channel.
type HTTPHandler struct {
	feed    *Channel
	records RecordSource
	logger  *zap.Logger
}

func NewHTTPHandler(feed *Channel, records RecordSource, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{feed: feed, records: records, logger: logger.With(zap.String("module", "feed"))}
}

// Router builds the gin engine serving the feed API and /metrics.
func (h *HTTPHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/blobs", h.PublishBlobs)
	v1.POST("/reorg", h.signal(blueprint.Reorged))
	v1.POST("/revert", h.signal(blueprint.Reverted))
	v1.GET("/blobs/:name", h.GetBlob)
	return router
}

// PublishBlobs pushes one Committed event carrying every blob of the request.
func (h *HTTPHandler) PublishBlobs(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sidecars := make([]blueprint.Sidecar, 0, len(req.Blobs))
	for i, b := range req.Blobs {
		id, err := blueprint.ParseBlobID(b.Commitment)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("blob %d: %v", i, err)})
			return
		}
		data, err := hexutil.Decode(b.Data)
		if err != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("blob %d: data must be non-empty 0x-prefixed hex", i)})
			return
		}
		sidecars = append(sidecars, blueprint.Sidecar{Commitment: id, Data: data})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pushTimeout)
	defer cancel()
	if err := h.feed.Commit(ctx, sidecars...); err != nil {
		h.logger.Warn("failed to push blobs", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	names := make([]string, len(sidecars))
	for i, sc := range sidecars {
		names[i] = sc.Commitment.String()
	}
	h.logger.Info("blobs accepted", zap.Strings("blobs", names))
	c.JSON(http.StatusAccepted, gin.H{"accepted": names})
}

func (h *HTTPHandler) signal(kind blueprint.EventKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pushTimeout)
		defer cancel()
		var err error
		if kind == blueprint.Reorged {
			err = h.feed.Reorg(ctx)
		} else {
			err = h.feed.Revert(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Warn("chain event signalled", zap.Stringer("event", kind))
		c.JSON(http.StatusAccepted, gin.H{"event": kind.String()})
	}
}

// GetBlob returns the record of an ingested blob.
func (h *HTTPHandler) GetBlob(c *gin.Context) {
	id, err := blueprint.ParseBlobID(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	rec, err := h.records.Record(c.Request.Context(), id.String())
	if errors.Is(err, metastore.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "blob not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load blob record", zap.String("blob", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, RecordResponse{
		BlobName:       rec.BlobName,
		VersionedHash:  hexutil.Encode(rec.VersionedHash[:]),
		Root:           rec.Root.String(),
		Hash:           rec.HashName,
		DataShards:     rec.Params.DataShards,
		ParityShards:   rec.Params.ParityShards,
		ShardSize:      rec.Params.ShardSize,
		OriginalLength: rec.Params.OriginalLength,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339Nano),
	})
}
