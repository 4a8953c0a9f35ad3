// Command score consumes a per_action.jsonl run artifact and a domain
// policy, and produces a Score Report plus the normalized
// eval_per_action.jsonl view.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"perpbench/internal/domain"
	"perpbench/internal/score"
)

const scoreReportFile = "score_report.json"
const evalFile = "eval_per_action.jsonl"

func main() {
	input := flag.String("input", "", "path to per_action.jsonl")
	domainsPath := flag.String("domains", "", "path to the domain policy file")
	outDir := flag.String("out-dir", "", "directory to write the score report and eval output into")
	windowMs := flag.Int64("window-ms", 0, "override the per-action window width in milliseconds (0 = trust the input)")
	capPerSig := flag.Uint("cap-per-sig", 0, "override the per-signature cap (0 = use the policy default)")
	benchVersion := flag.String("bench-version", "dev", "bench version string recorded in the report metadata")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *input == "" || *domainsPath == "" || *outDir == "" {
		logger.Error("missing required flags", "input", *input, "domains", *domainsPath, "out-dir", *outDir)
		os.Exit(1)
	}

	if err := run(*input, *domainsPath, *outDir, *windowMs, uint32(*capPerSig), *benchVersion); err != nil {
		logger.Error("scoring failed", "error", err)
		os.Exit(1)
	}
}

func run(inputPath, domainsPath, outDir string, windowMs int64, capPerSig uint32, benchVersion string) error {
	policy, err := domain.Load(domainsPath)
	if err != nil {
		return fmt.Errorf("load domain policy: %w", err)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	evalOut, err := os.Create(filepath.Join(outDir, evalFile))
	if err != nil {
		return fmt.Errorf("create %s: %w", evalFile, err)
	}
	defer evalOut.Close()

	report, err := score.Run(in, evalOut, score.Options{
		Policy:           policy,
		WindowMsOverride: windowMs,
		CapOverride:      capPerSig,
		BenchVersion:     benchVersion,
		RunDir:           outDir,
	})
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	if err := score.WriteReport(filepath.Join(outDir, scoreReportFile), report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
