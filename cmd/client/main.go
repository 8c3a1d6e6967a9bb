package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/hyperdetect/internal/client"
	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/hsi"
	"github.com/tensorplex-labs/hyperdetect/internal/scoring"
	"github.com/tensorplex-labs/hyperdetect/internal/server"
	"github.com/tensorplex-labs/hyperdetect/internal/utils/logger"
)

var (
	scenePath = flag.String("scene", "", "scene file to send; synthesizes one when empty")
	lambda    = flag.Float64("lambda", 0, "override the server's regularization base")
	seed      = flag.Uint64("seed", 0, "fix the server's random seed for this request")
	topK      = flag.Int("top", 20, "pixels shown in the terminal plot")
)

func main() {
	logger.Init()

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}
	if *scenePath != "" {
		cfg.ScenePath = *scenePath
	}

	c, err := client.NewClientFromEnv(&cfg.ClientEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init detection client")
	}
	defer c.Close()

	health, err := c.Health(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("server", cfg.ServerURL).Msg("detection server unavailable")
	}
	log.Info().Any("config", health.Config).Msg("Connected to detection server")

	var scene *hsi.Scene
	if cfg.ScenePath != "" {
		scene, err = hsi.Load(cfg.ScenePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load scene")
		}
	} else {
		scene = hsi.Synthetic(hsi.DefaultSyntheticOptions(), rand.New(rand.NewPCG(rand.Uint64(), 0)))
	}

	var params *server.DetectParams
	if *lambda != 0 || *seed != 0 {
		params = &server.DetectParams{}
		if *lambda != 0 {
			params.Lambda = lambda
		}
		if *seed != 0 {
			params.Seed = seed
		}
	}

	resp, err := c.DetectScene(ctx, scene, params)
	if err != nil {
		log.Fatal().Err(err).Msg("detection request failed")
	}

	event := log.Info().
		Str("scene", resp.Name).
		Int("pixels", len(resp.Scores)).
		Int64("elapsed_ms", resp.ElapsedMs)
	if resp.AUC != nil {
		event = event.Float64("auc", *resp.AUC)
	}
	event.Msg("Detection finished")

	scoring.PlotTopPixelsTerminal(os.Stdout, resp.Scores, scene.GroundTruth, resp.Name, *topK)
}
