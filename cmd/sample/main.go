// boltz-sample: draws atom coordinates by reverse diffusion
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LiorZ/BoltzDesign1/align"
	"github.com/LiorZ/BoltzDesign1/diffusion"
	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/structure"
	"github.com/LiorZ/BoltzDesign1/tensor"
	"github.com/LiorZ/BoltzDesign1/utils"
)

var (
	configFile   = flag.String("config", "", "YAML config file (defaults when empty)")
	initConfig   = flag.Bool("init", false, "Write the default config to -config and exit")
	outFile      = flag.String("out", "", "Output JSON file (stdout when empty)")
	guideFile    = flag.String("guide", "", "Guide structure (PDB or mmCIF), overrides the config")
	chain        = flag.String("chain", "", "Guide chain, overrides the config")
	atoms        = flag.Int("atoms", 0, "Atoms to sample, defaults to the guide length")
	steps        = flag.Int("steps", 0, "Sampling steps, overrides the config")
	multiplicity = flag.Int("multiplicity", 0, "Samples per structure, overrides the config")
	seed         = flag.Uint64("seed", 0, "Random seed, overrides the config when non-zero")
	verbose      = flag.Bool("verbose", false, "Per-step logging and timing report")
)

// openONNX is set when the binary is built with the ort tag.
var openONNX func(cfg utils.ModelConfig) (nn.ScoreModel, func(), error)

// output is the JSON document written for a run.
type output struct {
	RunID     string        `json:"run_id"`
	Seed      uint64        `json:"seed"`
	Steps     int           `json:"steps"`
	Coords    [][][]float64 `json:"coords"`
	TokenRepr *tensorJSON   `json:"token_repr,omitempty"`
}

type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func main() {
	flag.Parse()
	utils.Verbose = *verbose
	utils.Output = os.Stderr

	if *initConfig {
		if *configFile == "" {
			log.Fatal("-init needs -config")
		}
		if err := utils.Default().Save(*configFile); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := utils.LoadOrDefault(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	applyFlags(cfg)
	if err := utils.ValidateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	align.Logger = logger

	w := io.Writer(os.Stdout)
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		w = f
	}

	if err := run(cfg, *atoms, logger, w); err != nil {
		log.Fatal(err)
	}
}

func applyFlags(cfg *utils.Config) {
	if *guideFile != "" {
		cfg.Guide.Structure = *guideFile
	}
	if *chain != "" {
		cfg.Guide.Chain = *chain
	}
	if *steps > 0 {
		cfg.Sampler.Steps = *steps
	}
	if *multiplicity > 0 {
		cfg.Sampler.Multiplicity = *multiplicity
	}
	if *seed != 0 {
		cfg.Sampler.Seed = *seed
	}
}

func buildModel(cfg utils.ModelConfig) (nn.ScoreModel, func(), error) {
	switch cfg.Backend {
	case "onnx":
		if openONNX == nil {
			return nil, nil, fmt.Errorf("onnx backend requires a binary built with -tags ort")
		}
		return openONNX(cfg)
	default:
		return &nn.NullScoreModel{TokenDim: cfg.TokenDim, NumTokens: cfg.Tokens}, func() {}, nil
	}
}

// run samples with cfg and writes the result as JSON to w. numAtoms falls
// back to the config and then to the guide length.
func run(cfg *utils.Config, numAtoms int, logger *slog.Logger, w io.Writer) error {
	var guide []r3.Vec
	if cfg.Guide.Structure != "" {
		var err error
		guide, err = structure.LoadCA(cfg.Guide.Structure, cfg.Guide.Chain)
		if err != nil {
			return err
		}
		logger.Info("loaded guide", "path", cfg.Guide.Structure, "chain", cfg.Guide.Chain, "residues", len(guide))
	}
	if numAtoms <= 0 {
		numAtoms = cfg.Model.Atoms
	}
	if numAtoms <= 0 {
		numAtoms = len(guide)
	}
	if numAtoms <= 0 {
		return fmt.Errorf("number of atoms unknown: set -atoms, model.atoms or a guide")
	}

	model, closeModel, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}
	defer closeModel()

	samplerCfg, _ := diffusion.ConfigFrom(cfg)
	opts := []diffusion.Option{diffusion.WithLogger(logger)}
	if samplerCfg.AccumulateTokenRepr {
		acc, err := diffusion.LoadAccumulatorWeights(cfg.Model.AccumulatorWeights, cfg.Model.TokenDim, cfg.Model.FourierDim)
		if err != nil {
			return err
		}
		opts = append(opts, diffusion.WithAccumulator(acc))
	}
	sampler, err := diffusion.NewSampler(samplerCfg, model, opts...)
	if err != nil {
		return err
	}

	mask := tensor.New(1, numAtoms)
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	req := diffusion.Request{
		AtomMask:     mask,
		Multiplicity: cfg.Sampler.Multiplicity,
		Seed:         cfg.Sampler.Seed,
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintf(os.Stderr, "sampling %d x %d atoms over %d steps...\n", req.Multiplicity, numAtoms, samplerCfg.Steps)
	}
	var res *diffusion.Result
	if guide != nil {
		res, err = sampler.SampleGuided(req, guide)
	} else {
		res, err = sampler.Sample(req)
	}
	if err != nil {
		return err
	}
	utils.PrintTimingStats(res.Timings, samplerCfg.Steps)

	out := output{
		RunID: res.RunID.String(),
		Seed:  cfg.Sampler.Seed,
		Steps: samplerCfg.Steps,
	}
	for b := 0; b < res.Coords.Shape[0]; b++ {
		pts := align.Points(res.Coords, b)
		sample := make([][]float64, len(pts))
		for i, p := range pts {
			sample[i] = []float64{p.X, p.Y, p.Z}
		}
		out.Coords = append(out.Coords, sample)
	}
	if res.TokenRepr != nil {
		out.TokenRepr = &tensorJSON{Shape: res.TokenRepr.Shape, Data: res.TokenRepr.Data}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
