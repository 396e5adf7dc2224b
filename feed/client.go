package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// Publish posts one blob to the /v1/blobs endpoint served at baseURL.
func Publish(ctx context.Context, client *http.Client, baseURL string, id blueprint.BlobID, data []byte) error {
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(PublishRequest{Blobs: []BlobPayload{{
		Commitment: id.String(),
		Data:       hexutil.Encode(data),
	}}})
	if err != nil {
		return err
	}
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "http://" + baseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/v1/blobs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", blueprint.ErrTransport, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("publish rejected with %s: %s", res.Status, bytes.TrimSpace(msg))
	}
	return nil
}
