package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tensorplex-labs/hyperdetect/internal/ecem"
	"github.com/tensorplex-labs/hyperdetect/internal/hsi"
)

const (
	// Server defaults
	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8080
	DefaultBodyLimit  = 64 * 1024 * 1024 // 64MB

	// DefaultDetectTimeout bounds a single detection request.
	DefaultDetectTimeout = 5 * time.Minute

	HealthRoute = "/health"
	DetectRoute = "/detect"
)

// Server is the detection service.
type Server struct {
	App      *fiber.App
	config   *ServerConfig
	detector *ecem.Detector
}

type ServerConfig struct {
	Host          string
	Port          int
	BodyLimit     int
	DetectTimeout time.Duration
}

// StdResponse represents the standardized response structure
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

// DetectParams overrides the service's detector settings for one request.
// Unset fields keep the service defaults.
type DetectParams struct {
	WindowSizes []float64 `json:"window_sizes,omitempty"`
	NumLayer    *int      `json:"num_layer,omitempty"`
	NumCEM      *int      `json:"num_cem,omitempty"`
	Lambda      *float64  `json:"lambda,omitempty"`
	Seed        *uint64   `json:"seed,omitempty"`
}

type DetectRequest struct {
	Scene  hsi.SceneData `json:"scene"`
	Params *DetectParams `json:"params,omitempty"`
}

type DetectResponse struct {
	Name   string    `json:"name"`
	Scores []float64 `json:"scores"`
	// AUC is set when the scene carries ground truth with both classes.
	AUC       *float64 `json:"auc,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

type HealthResponse struct {
	Status string      `json:"status"`
	Config ecem.Config `json:"config"`
}
