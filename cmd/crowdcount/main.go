package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"crowdcount/pkg/config"
	"crowdcount/pkg/dataset"
	"crowdcount/pkg/evaluation"
	"crowdcount/pkg/session"
)

func main() {
	parser := argparse.NewParser("crowdcount", "Prepare patch datasets for crowd counting and score patch predictions")
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML configuration file (defaults are used when missing)", Default: "config.yaml"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Enable debug logging"})

	preprocessCmd := parser.NewCommand("preprocess", "Build ground truth maps and patches from a raw dataset")
	rawDir := preprocessCmd.String("i", "input", &argparse.Options{Help: "Raw dataset root with images/ and ground-truth/", Required: true})
	outDir := preprocessCmd.String("o", "output", &argparse.Options{Help: "Processed dataset directory", Required: true})
	previews := preprocessCmd.Flag("", "previews", &argparse.Options{Help: "Write point overlay, density and patch plane previews"})

	indexCmd := parser.NewCommand("index", "List the complete samples of a processed dataset")
	indexDir := indexCmd.String("d", "dataset", &argparse.Options{Help: "Processed dataset directory", Required: true})

	evaluateCmd := parser.NewCommand("evaluate", "Reassemble per-patch predictions and score the counts")
	evalDir := evaluateCmd.String("d", "dataset", &argparse.Options{Help: "Processed dataset directory", Required: true})
	predDir := evaluateCmd.String("p", "predictions", &argparse.Options{Help: "Directory of <name>_patch_<idx>.npy predictions", Required: true})
	saveDir := evaluateCmd.String("s", "save", &argparse.Options{Help: "Directory for reassembled prediction maps"})

	initCmd := parser.NewCommand("init-config", "Write a configuration file with default values")
	initPath := initCmd.String("o", "output", &argparse.Options{Help: "Configuration file to write", Default: "config.yaml"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(1)
	}

	if initCmd.Happened() {
		if err := config.CreateDefaultConfigFile(*initPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *initPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if *previews {
		cfg.Output.SavePreviews = true
	}

	sess, err := session.Open(cfg.Output.LogDir, cfg.Output.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log session: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	switch {
	case preprocessCmd.Happened():
		err = runPreprocess(ctx, sess, cfg, *rawDir, *outDir)
	case indexCmd.Happened():
		err = runIndex(sess, cfg, *indexDir)
	case evaluateCmd.Happened():
		err = runEvaluate(ctx, sess, cfg, *evalDir, *predDir, *saveDir)
	}
	stop()

	if err != nil {
		sess.Log.Errorf("%v", err)
	}
	sess.Close()
	if err != nil {
		os.Exit(1)
	}
}

func runPreprocess(ctx context.Context, sess *session.Session, cfg *config.Config, rawDir, outDir string) error {
	p := dataset.NewPreprocessor(cfg, sess.Named("preprocess"))
	report, err := p.Run(ctx, rawDir, outDir)
	if report.Processed+report.Skipped+report.Failed == 0 && err != nil {
		return err
	}
	for _, e := range multierr.Errors(err) {
		sess.Log.Warnf("not processed: %v", e)
	}

	fmt.Printf("Images found:     %d\n", report.Found)
	fmt.Printf("Processed:        %d\n", report.Processed)
	fmt.Printf("Skipped:          %d\n", report.Skipped)
	fmt.Printf("Failed:           %d\n", report.Failed)
	fmt.Printf("Patches written:  %d\n", report.Patches)
	fmt.Printf("Points read:      %d (%d dropped)\n", report.Points, report.Dropped)
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "preprocessing interrupted")
	}
	return nil
}

func runIndex(sess *session.Session, cfg *config.Config, dir string) error {
	samples, err := dataset.NewIndexer(cfg, dir, sess.Named("index")).Index()
	if err != nil {
		return err
	}
	for _, s := range samples {
		fmt.Printf("%-24s %4d patches  %s\n", s.Name, len(s.PatchImagePaths), filepath.Base(s.FullImagePath))
	}
	fmt.Printf("%d samples\n", len(samples))
	return nil
}

func runEvaluate(ctx context.Context, sess *session.Session, cfg *config.Config, dir, predDir, saveDir string) error {
	samples, err := dataset.NewIndexer(cfg, dir, sess.Named("index")).Index()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.Errorf("no complete samples in %s", dir)
	}

	ev := evaluation.NewEvaluator(cfg, evaluation.FilePredictor{Dir: predDir}, sess.Named("evaluate"))
	ev.SaveDir = saveDir
	metrics, results, err := ev.Evaluate(ctx, samples)
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("%-24s predicted %8.2f  real %6.0f\n", r.Name, r.Predicted, r.Actual)
	}
	fmt.Printf("\nImages: %d\n", metrics.N)
	fmt.Printf("MAE:    %.2f\n", metrics.MAE)
	fmt.Printf("MAPE:   %.2f%%\n", metrics.MAPE)
	fmt.Printf("RMSE:   %.2f\n", metrics.RMSE)
	return nil
}
