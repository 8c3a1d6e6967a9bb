package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/ecem"
	"github.com/tensorplex-labs/hyperdetect/internal/hsi"
	"github.com/tensorplex-labs/hyperdetect/internal/scoring"
	"github.com/tensorplex-labs/hyperdetect/internal/utils/logger"
)

var (
	scenePath = flag.String("scene", "", "scene file (.json or .json.zst); synthesizes one when empty")
	scenario  = flag.String("scenario", "", "experiment preset: san, san_noise, syn_noise, cup")
	snr       = flag.Float64("snr", 0, "add white Gaussian noise at this SNR in dB")
	outputDir = flag.String("out", "", "directory for scores.json and plots")
	savePlots = flag.Bool("plots", false, "write ROC curve and score map PNGs")
	saveChart = flag.Bool("html", false, "write an interactive HTML score map")
	topK      = flag.Int("top", 20, "pixels shown in the terminal plot")
	seed      = flag.Uint64("seed", 0, "random seed, 0 draws a fresh one")
)

type scoresFile struct {
	Name   string    `json:"name"`
	Height int       `json:"height"`
	Width  int       `json:"width"`
	AUC    *float64  `json:"auc,omitempty"`
	Scores []float64 `json:"scores"`
}

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}
	applyFlags(cfg)
	logger.SetVerbose(cfg.Verbose)

	if preset := cfg.ApplyPreset(); preset != nil {
		if cfg.SNR == 0 {
			cfg.SNR = preset.SNR
		}
		log.Info().
			Str("scenario", preset.Name).
			Float64("lambda", preset.Lambda).
			Float64("snr", cfg.SNR).
			Msg("Applied scenario preset")
	}

	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))

	scene, err := loadScene(cfg.ScenePath, rng)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ScenePath).Msg("failed to load scene")
	}
	if cfg.SNR != 0 {
		scene = scene.WithNoise(cfg.SNR, rng)
		log.Info().Float64("snr", cfg.SNR).Msg("Added white Gaussian noise")
	}

	detector, err := ecem.NewDetectorFromEnv(&cfg.DetectorEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid detector configuration")
	}

	log.Info().
		Str("scene", scene.Name).
		Int("bands", scene.Bands()).
		Int("pixels", scene.Pixels()).
		Uint64("seed", cfg.Seed).
		Msg("Running detection")

	result, err := detector.Detect(ctx, scene.Image, scene.Target)
	if err != nil {
		log.Fatal().Err(err).Msg("detection failed")
	}

	out := scoresFile{
		Name:   scene.Name,
		Height: scene.Height,
		Width:  scene.Width,
		Scores: result,
	}

	var curve scoring.Curve
	if scene.GroundTruth != nil {
		curve, err = scoring.ROC("E-CEM", result, scene.GroundTruth)
		if err != nil {
			log.Warn().Err(err).Msg("cannot evaluate against ground truth")
		} else {
			out.AUC = &curve.AUC
			log.Info().Float64("auc", curve.AUC).Str("scene", scene.Name).Msg("Detection evaluated")
		}
	}

	scoring.PlotTopPixelsTerminal(os.Stdout, result, scene.GroundTruth, scene.Name, *topK)

	if err := writeScores(filepath.Join(cfg.OutputDir, scene.Name+"_scores.json"), out); err != nil {
		log.Fatal().Err(err).Msg("failed to write scores")
	}

	if *savePlots {
		if out.AUC != nil {
			if err := scoring.SaveROCPlot(filepath.Join(cfg.OutputDir, scene.Name+"_roc.png"), curve); err != nil {
				log.Error().Err(err).Msg("failed to save ROC plot")
			}
		}
		mapPath := filepath.Join(cfg.OutputDir, scene.Name+"_scores.png")
		if err := scoring.SaveScoreMap(mapPath, scene.Name, result, scene.Height, scene.Width); err != nil {
			log.Error().Err(err).Msg("failed to save score map")
		}
	}

	if *saveChart {
		if err := writeChart(filepath.Join(cfg.OutputDir, scene.Name+"_scores.html"), scene, result); err != nil {
			log.Error().Err(err).Msg("failed to save score chart")
		}
	}
}

func writeChart(path string, scene *hsi.Scene, scores []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := scoring.RenderScoreChart(f, scene.Name, scores, scene.GroundTruth, scene.Height, scene.Width); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("Score chart written")
	return nil
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cfg *config.AppConfig) {
	if *scenePath != "" {
		cfg.ScenePath = *scenePath
	}
	if *scenario != "" {
		cfg.Scenario = *scenario
	}
	if *snr != 0 {
		cfg.SNR = *snr
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
}

func loadScene(path string, rng *rand.Rand) (*hsi.Scene, error) {
	if path != "" {
		return hsi.Load(path)
	}
	log.Info().Msg("No scene given, synthesizing one")
	return hsi.Synthetic(hsi.DefaultSyntheticOptions(), rng), nil
}

func writeScores(path string, out scoresFile) error {
	raw, err := sonic.ConfigDefault.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("Scores written")
	return nil
}
