package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"RegimeCast/internal/di"
	"RegimeCast/internal/domain/models"
	"RegimeCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "run", "run | replay | export")
	hiddenStates := flag.Int("hidden-states", 0, "override model.num_hidden_states")
	priorStrength := flag.Float64("prior-strength", 0, "override model.prior_strength")
	decay := flag.Float64("decay", 0, "override model.decay")
	horizon := flag.Int("horizon", -1, "override model.forecast_horizon")
	confidence := flag.String("confidence", "", "override model.confidence_metric (margin | entropy)")
	seed := flag.Int64("seed", 0, "override model.seed")
	barsPath := flag.String("bars", "", "bar CSV path for replay mode")
	out := flag.String("out", "", "output path for replay and export results")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	applyOverrides(cfg, *hiddenStates, *priorStrength, *decay, *horizon, *confidence, *seed, *barsPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	switch *mode {
	case "run":
		runApp(cfg)
	case "replay":
		runReplay(cfg, *out)
	case "export":
		runExport(cfg, *out)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	return config.LoadWithEnv(path)
}

func applyOverrides(cfg *config.Config, hiddenStates int, priorStrength, decay float64, horizon int, confidence string, seed int64, barsPath string) {
	if hiddenStates > 0 {
		cfg.Model.HiddenStates = hiddenStates
	}
	if priorStrength > 0 {
		cfg.Model.PriorStrength = priorStrength
	}
	if decay > 0 {
		cfg.Model.Decay = decay
	}
	if horizon >= 0 {
		cfg.Model.ForecastHorizon = horizon
	}
	if confidence != "" {
		cfg.Model.ConfidenceMetric = confidence
	}
	if seed != 0 {
		cfg.Model.Seed = seed
	}
	if barsPath != "" {
		cfg.Data.BarsPath = barsPath
	}
}

func runApp(cfg *config.Config) {
	log.Printf("env=%s source=%s symbol=%s", cfg.Environment, cfg.Stream.Source, cfg.Data.Symbol)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

// runReplay trains a fresh model over a historical bar file and writes the
// result as JSON, no infrastructure required.
func runReplay(cfg *config.Config, out string) {
	if cfg.Data.BarsPath == "" {
		log.Fatal("replay mode requires -bars or data.bars_path")
	}

	replayer, err := di.NewOfflineReplayer(cfg)
	if err != nil {
		log.Fatalf("replay setup failed: %v", err)
	}
	result, err := replayer.Run(context.Background(), models.ReplayRequest{
		Path:    cfg.Data.BarsPath,
		Decay:   cfg.Model.Decay,
		Horizon: cfg.Model.ForecastHorizon,
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	if err := writeJSON(out, result); err != nil {
		log.Fatalf("write result: %v", err)
	}
	log.Printf("replay done: steps=%d accuracy=%.4f converged=%v",
		result.Status.Step, result.Status.Accuracy, result.Status.Converged)
}

// runExport serializes the configured prior model, optionally trained over
// the bar file first.
func runExport(cfg *config.Config, out string) {
	var artifact interface{}
	if cfg.Data.BarsPath != "" {
		replayer, err := di.NewOfflineReplayer(cfg)
		if err != nil {
			log.Fatalf("export setup failed: %v", err)
		}
		result, err := replayer.Run(context.Background(), models.ReplayRequest{
			Path:    cfg.Data.BarsPath,
			Decay:   cfg.Model.Decay,
			Horizon: cfg.Model.ForecastHorizon,
		})
		if err != nil {
			log.Fatalf("export replay failed: %v", err)
		}
		artifact = result.Artifact
	} else {
		a, err := di.NewPriorArtifact(cfg)
		if err != nil {
			log.Fatalf("export failed: %v", err)
		}
		artifact = a
	}
	if err := writeJSON(out, artifact); err != nil {
		log.Fatalf("write artifact: %v", err)
	}
}

func writeJSON(path string, v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		enc = json.NewEncoder(f)
	}
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
