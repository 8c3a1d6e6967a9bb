// Package client talks to the detection server.
package client

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

	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/hsi"
	"github.com/tensorplex-labs/hyperdetect/internal/server"
)

const (
	DefaultServerURL    = "http://127.0.0.1:8080"
	DefaultTimeout      = 2 * time.Minute
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 10 * time.Second
)

type ClientConfig struct {
	ServerURL       string
	Timeout         time.Duration
	RetryMax        int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	ZstdCompression bool
}

type Client struct {
	config      *ClientConfig
	restyClient *resty.Client
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

// NewClient creates a detection client. Transient failures (connection errors,
// 429 and most 5xx responses) are retried with backoff by the transport.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = &ClientConfig{RetryMax: DefaultRetryMax, ZstdCompression: true}
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = DefaultRetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = DefaultRetryWaitMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Warn().
				Str("url", req.URL.String()).
				Int("attempt", attempt).
				Msg("Retrying detection request")
		}
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimSuffix(cfg.ServerURL, "/")).
		SetTimeout(cfg.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	client := &Client{
		config:      cfg,
		restyClient: restyClient,
	}

	if cfg.ZstdCompression {
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

	log.Debug().
		Str("server_url", cfg.ServerURL).
		Int("retry_max", cfg.RetryMax).
		Str("timeout", cfg.Timeout.String()).
		Bool("zstd", cfg.ZstdCompression).
		Msg("Detection client initialized")

	return client, nil
}

// checkRetry follows the default policy except for 500 and 504: the server
// reports those when a detection failed or ran out of time, and sending the
// same scene again repeats the same work.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil {
		switch resp.StatusCode {
		case http.StatusInternalServerError, http.StatusGatewayTimeout:
			return false, nil
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// NewClientFromEnv creates a compressing client from the environment
// configuration.
func NewClientFromEnv(cfg *config.ClientEnvConfig) (*Client, error) {
	return NewClient(&ClientConfig{
		ServerURL:       cfg.ServerURL,
		Timeout:         cfg.ClientTimeout,
		RetryMax:        cfg.RetryMax,
		RetryWaitMin:    cfg.RetryWaitMin,
		RetryWaitMax:    cfg.RetryWaitMax,
		ZstdCompression: true,
	})
}

// Close cleans up client resources
func (c *Client) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	return doRequest[server.HealthResponse](ctx, c, resty.MethodGet, server.HealthRoute, nil)
}

func (c *Client) Detect(ctx context.Context, req server.DetectRequest) (*server.DetectResponse, error) {
	return doRequest[server.DetectResponse](ctx, c, resty.MethodPost, server.DetectRoute, req)
}

// DetectScene sends a scene for detection. params may be nil.
func (c *Client) DetectScene(ctx context.Context, scene *hsi.Scene, params *server.DetectParams) (*server.DetectResponse, error) {
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	return c.Detect(ctx, server.DetectRequest{
		Scene:  hsi.ToSceneData(scene),
		Params: params,
	})
}

func doRequest[T any](ctx context.Context, c *Client, method, route string, request any) (*T, error) {
	req := c.restyClient.R().SetContext(ctx)

	if request != nil {
		jsonData, err := sonic.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.SetHeader("Content-Type", "application/json")
		if c.encoder != nil {
			req.SetHeader("Content-Encoding", "zstd")
			jsonData = c.encoder.EncodeAll(jsonData, nil)
		}
		req.SetBody(jsonData)
	}

	log.Trace().
		Str("method", method).
		Str("route", route).
		Msg("Sending detection request")

	resp, err := req.Execute(method, route)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	responseBody := resp.Body()
	if c.decoder != nil && resp.Header().Get("Content-Encoding") == "zstd" {
		decompressed, err := c.decoder.DecodeAll(responseBody, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress response: %w", err)
		}
		responseBody = decompressed
	}

	var out server.StdResponse[T]
	if err := sonic.Unmarshal(responseBody, &out); err != nil {
		if resp.IsError() {
			return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode(), string(responseBody))
		}
		return nil, fmt.Errorf("failed to unmarshal StdResponse: %w", err)
	}

	if out.Error != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode(), Message: *out.Error}
	}
	if resp.IsError() {
		return nil, &ServerError{StatusCode: resp.StatusCode(), Message: resp.Status()}
	}
	return &out.Body, nil
}

// ServerError is an error reported by the detection server.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}
