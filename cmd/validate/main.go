package main

// Offline pipeline checks against a single document:
//   go run ./cmd/validate -task prescription -image receta.jpg
//   go run ./cmd/validate -task labs -raw respuesta.txt
//   go run ./cmd/validate -task matcher -name "LOSARTAN 50MG"

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"misalud-backend/internal/extraction"
	"misalud-backend/internal/inference"
	"misalud-backend/internal/matcher"
	"misalud-backend/internal/orchestrator"
	"misalud-backend/internal/registry"
	"misalud-backend/internal/shared/config"
	"misalud-backend/internal/shared/server"
)

func main() {
	task := flag.String("task", "prescription", "prescription, labs or matcher")
	image := flag.String("image", "", "path to the document to analyze")
	raw := flag.String("raw", "", "path to a saved model response; skips live inference")
	name := flag.String("name", "", "medication name for the matcher task")
	backend := flag.String("backend", "auto", "inference backend: auto, remote or local")
	verbose := flag.Bool("v", false, "print the full result as JSON")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	ok := false
	switch *task {
	case "matcher":
		ok = runMatcher(ctx, cfg, *name, *verbose)
	case "prescription", "labs":
		if *raw != "" {
			ok = runReplay(*task, *raw, *verbose)
		} else {
			ok = runAnalysis(ctx, cfg, *task, *image, *backend, *verbose)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown task %q\n", *task)
	}

	if !ok {
		os.Exit(1)
	}
}

func runMatcher(ctx context.Context, cfg config.Config, name string, verbose bool) bool {
	if name == "" {
		fmt.Fprintln(os.Stderr, "-name is required for the matcher task")
		return false
	}
	m := matcher.New(registry.NewClient(cfg.CUMBaseURL, cfg.SocrataToken))
	result := m.Match(ctx, name, "", registry.DefaultLimit)

	if verbose {
		printJSON(result)
	}
	if result.Record == nil {
		fmt.Printf("no match for %q (normalized %q)\n", name, result.QueryNormalized)
		return false
	}
	fmt.Printf("%s -> %s [%s, %.2f]\n", name, result.Record.Producto, result.MatchType, result.Confidence)
	return true
}

// runReplay feeds a previously saved raw model response through the
// response cleaner and the extraction parsers, without any backend.
func runReplay(task, rawPath string, verbose bool) bool {
	data, err := os.ReadFile(rawPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read saved response: %v\n", err)
		return false
	}
	cleaned := inference.CleanResponse(string(data))

	switch task {
	case "labs":
		result := extraction.ParseLabResults(cleaned)
		if verbose {
			printJSON(result)
		}
		if !result.ParseSuccess || len(result.Resultados) == 0 {
			fmt.Printf("no lab results parsed from %s\n", rawPath)
			return false
		}
		fmt.Printf("parsed %d lab results from %s\n", len(result.Resultados), rawPath)
		return true
	default:
		result := extraction.ParsePrescription(cleaned)
		if verbose {
			printJSON(result)
		}
		if !result.ParseSuccess || len(result.Medicamentos) == 0 {
			fmt.Printf("no medications parsed from %s\n", rawPath)
			return false
		}
		fmt.Printf("parsed %d medications from %s\n", len(result.Medicamentos), rawPath)
		return true
	}
}

func runAnalysis(ctx context.Context, cfg config.Config, task, image, backend string, verbose bool) bool {
	if image == "" {
		fmt.Fprintln(os.Stderr, "-image or -raw is required")
		return false
	}

	backends := server.NewBackendRegistry(cfg)
	pipeline := newPipeline(cfg, backends)
	result, err := pipeline.Analyze(ctx, image, backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return false
	}

	if verbose {
		printJSON(result)
	} else {
		fmt.Println(result.Report)
	}

	switch task {
	case "labs":
		return result.Lab != nil && len(result.Lab.Resultados) > 0
	default:
		return result.Prescription != nil && len(result.Prescription.Medicamentos) > 0
	}
}

func newPipeline(cfg config.Config, backends *inference.Registry) *orchestrator.Orchestrator {
	return orchestrator.New(backends, server.NewEnricher(cfg))
}

func printJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return
	}
	fmt.Println(string(encoded))
}
