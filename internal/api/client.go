package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	ZstdCompression bool
	// Retries is the number of extra attempts after a connection error or
	// 5xx response.
	Retries int
}

// Client talks to a running scoring server.
type Client struct {
	config      *ClientConfig
	restyClient *resty.Client
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

// NewClient creates a client for the server at config.BaseURL.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("client base url cannot be empty")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultClientTimeout * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(config.Retries, 0)
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Warn().Str("url", req.URL.String()).Int("attempt", attempt).Msg("retrying scoring request")
		}
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimSuffix(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Content-Type", "application/json")

	client := &Client{
		config:      config,
		restyClient: restyClient,
	}

	if config.ZstdCompression {
		restyClient.SetHeader("Accept-Encoding", "zstd")

		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		client.encoder = encoder

		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		client.decoder = decoder
	}
	return client, nil
}

// Close releases the codec resources.
func (c *Client) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

func (c *Client) decode(resp *resty.Response) ([]byte, error) {
	body := resp.Body()
	if c.decoder == nil || !strings.EqualFold(resp.Header().Get("Content-Encoding"), "zstd") {
		return body, nil
	}
	decompressed, err := c.decoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress response: %w", err)
	}
	return decompressed, nil
}

func unwrap[T any](path string, status int, body []byte) (T, error) {
	var result StdResponse[T]
	if err := sonic.Unmarshal(body, &result); err != nil {
		if status >= 400 {
			return result.Body, fmt.Errorf("request returned status %d: %s", status, string(body))
		}
		return result.Body, fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	if result.Error != nil {
		log.Error().Str("error", *result.Error).Str("path", path).Int("status", status).Msg("response contains error")
		return result.Body, fmt.Errorf("server error (status %d): %s", status, *result.Error)
	}
	if status >= 400 {
		return result.Body, fmt.Errorf("request returned status %d", status)
	}
	return result.Body, nil
}

func postJSON[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var zero T
	req := c.restyClient.R().SetContext(ctx)

	if c.encoder != nil {
		jsonData, err := sonic.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		req = req.
			SetHeader("Content-Encoding", "zstd").
			SetBody(c.encoder.EncodeAll(jsonData, nil))
	} else {
		req = req.SetBody(body)
	}

	resp, err := req.Post(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("post request failed")
		return zero, fmt.Errorf("post %s: %w", path, err)
	}
	raw, err := c.decode(resp)
	if err != nil {
		return zero, err
	}
	return unwrap[T](path, resp.StatusCode(), raw)
}

func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	resp, err := c.restyClient.R().SetContext(ctx).Get(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("get request failed")
		return zero, fmt.Errorf("get %s: %w", path, err)
	}
	raw, err := c.decode(resp)
	if err != nil {
		return zero, err
	}
	return unwrap[T](path, resp.StatusCode(), raw)
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	return getJSON[HealthResponse](ctx, c, "/health")
}

func (c *Client) Superpose(ctx context.Context, req SuperposeRequest) (SuperposeResponse, error) {
	return postJSON[SuperposeResponse](ctx, c, "/superpose", req)
}

func (c *Client) Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error) {
	return postJSON[ScoreResponse](ctx, c, "/score", req)
}

func (c *Client) ScoreMultiChain(ctx context.Context, req MultiChainRequest) (MultiChainResponse, error) {
	return postJSON[MultiChainResponse](ctx, c, "/score/multichain", req)
}

// Ensemble evaluates prediction and reference ensembles remotely.
func (c *Client) Ensemble(ctx context.Context, req EnsembleRequest) (EnsembleResponse, error) {
	return postJSON[EnsembleResponse](ctx, c, "/ensemble", req)
}
