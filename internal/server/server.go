// Package server exposes the detector over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/ecem"
	"github.com/tensorplex-labs/hyperdetect/internal/scoring"
)

// NewServer creates the detection server. Requests without parameter
// overrides run on detector.
func NewServer(serverConfig *ServerConfig, detector *ecem.Detector) *Server {
	if serverConfig == nil {
		serverConfig = &ServerConfig{
			Host:      DefaultServerHost,
			Port:      DefaultServerPort,
			BodyLimit: DefaultBodyLimit,
		}
	}
	if serverConfig.BodyLimit <= 0 {
		serverConfig.BodyLimit = DefaultBodyLimit
	}
	if serverConfig.DetectTimeout <= 0 {
		serverConfig.DetectTimeout = DefaultDetectTimeout
	}

	log.Info().
		Any("serverConfig", serverConfig).
		Msg("Server configuration loaded")

	app := fiber.New(fiber.Config{
		Prefork:               false,
		DisableStartupMessage: true,
		ErrorHandler:          fiberErrHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             serverConfig.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(ZstdMiddleware([]string{HealthRoute}))

	server := &Server{
		App:      app,
		config:   serverConfig,
		detector: detector,
	}

	app.Get(HealthRoute, server.handleHealth)
	app.Post(DetectRoute, server.handleDetect)

	return server
}

// NewServerFromEnv creates the server from the environment configuration.
func NewServerFromEnv(cfg *config.ServerEnvConfig, detector *ecem.Detector) *Server {
	return NewServer(&ServerConfig{
		Host:          cfg.Address,
		Port:          cfg.Port,
		BodyLimit:     cfg.BodySizeLimit,
		DetectTimeout: cfg.DetectTimeout,
	}, detector)
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	// Status code defaults to 500
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a *fiber.Error
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("Fiber error handler triggered")

	return ctx.Status(code).JSON(createResponse(map[string]any{}, err))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(createResponse(HealthResponse{
		Status: "ok",
		Config: s.detector.Config(),
	}, nil))
}

func (s *Server) handleDetect(c *fiber.Ctx) error {
	var req DetectRequest
	if err := c.BodyParser(&req); err != nil {
		log.Error().
			Err(err).
			Str("route", DetectRoute).
			Msg("Failed to parse request body")
		return c.Status(fiber.StatusBadRequest).
			JSON(createResponse(DetectResponse{}, err))
	}

	scene, err := req.Scene.Scene()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(createResponse(DetectResponse{}, err))
	}

	detector := s.detector
	if req.Params != nil {
		detector, err = ecem.NewDetector(req.Params.options(s.detector.Config())...)
		if err != nil {
			return c.Status(statusFor(err)).
				JSON(createResponse(DetectResponse{}, err))
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.config.DetectTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := detector.Detect(ctx, scene.Image, scene.Target)
	if err != nil {
		log.Error().
			Err(err).
			Str("scene", scene.Name).
			Msg("Detection failed")
		return c.Status(statusFor(err)).
			JSON(createResponse(DetectResponse{}, err))
	}

	resp := DetectResponse{
		Name:      scene.Name,
		Scores:    result,
		ElapsedMs: time.Since(startTime).Milliseconds(),
	}
	if scene.GroundTruth != nil {
		if auc, err := scoring.AUC(result, scene.GroundTruth); err == nil {
			resp.AUC = &auc
		} else {
			log.Debug().Err(err).Str("scene", scene.Name).Msg("Skipping AUC")
		}
	}

	log.Info().
		Str("scene", scene.Name).
		Int("pixels", len(result)).
		Int64("elapsed_ms", resp.ElapsedMs).
		Msg("Detection served")

	return c.JSON(createResponse(resp, nil))
}

// options layers the request overrides over base.
func (p *DetectParams) options(base ecem.Config) []ecem.Option {
	opts := []ecem.Option{ecem.WithConfig(base)}
	if len(p.WindowSizes) > 0 {
		opts = append(opts, ecem.WithWindowSizes(p.WindowSizes...))
	}
	if p.NumLayer != nil {
		opts = append(opts, ecem.WithNumLayer(*p.NumLayer))
	}
	if p.NumCEM != nil {
		opts = append(opts, ecem.WithNumCEM(*p.NumCEM))
	}
	if p.Lambda != nil {
		opts = append(opts, ecem.WithLambda(*p.Lambda))
	}
	if p.Seed != nil {
		opts = append(opts, ecem.WithSeed(*p.Seed))
	}
	return opts
}

// statusFor maps detection errors to HTTP statuses. A singular solve that
// survived every retry depends only on the scene and parameters, so it is
// reported as unprocessable rather than as a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ecem.ErrInvalidConfiguration),
		errors.Is(err, ecem.ErrDimensionMismatch),
		errors.Is(err, ecem.ErrSingularMatrix):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// createResponse creates a StdResponse with the given body and error
func createResponse[T any](body T, err error) StdResponse[T] {
	if err != nil {
		errMsg := err.Error()
		return StdResponse[T]{
			Body:  body,
			Error: &errMsg,
		}
	}
	return StdResponse[T]{
		Body:  body,
		Error: nil,
	}
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Info().Str("address", addr).Msg("Detection server listening")
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}
