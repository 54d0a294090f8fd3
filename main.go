package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"framesift/catalog"
	"framesift/config"
	"framesift/engine"
	"framesift/logging"
	"framesift/preview"
	"framesift/signalhandler"
	"framesift/source"
	"framesift/types"
	"framesift/utils"
)

func main() {
	args := utils.ParseArguments(os.Args)

	command, hasCommand := args["command"]
	if !hasCommand {
		utils.PrintUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := cfg.LogLevel
	if _, ok := args["debug"]; ok {
		logLevel = "debug"
	}
	log, err := logging.New(logLevel, args["logfile"])
	if err != nil {
		fmt.Printf("Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	switch command {
	case "extract":
		handleExtractCommand(args, cfg, log)
	case "stats":
		handleStatsCommand(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

func handleExtractCommand(args map[string]string, cfg *config.Config, log *zap.Logger) {
	videoPath, hasVideo := args["video"]
	if !hasVideo || videoPath == "" {
		fmt.Println("Error: Missing video path (use --video=PATH)")
		utils.PrintUsage()
		os.Exit(1)
	}
	outDir, hasOut := args["out"]
	if !hasOut || outDir == "" {
		fmt.Println("Error: Missing output directory (use --out=DIR)")
		utils.PrintUsage()
		os.Exit(1)
	}

	opts, err := buildEngineOptions(args, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Printf("Error: cannot create output directory %s: %v\n", outDir, err)
		os.Exit(1)
	}

	src, err := source.OpenVideo(videoPath)
	if err != nil {
		// Source failure is the one fatal condition: no partial result.
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	fmt.Printf("Processing video: %d frames at %.2f FPS (processing every %d frame(s))\n",
		src.TotalFrames(), src.Rate(), opts.FrameSkip)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalhandler.Setup(cancel, log)

	eng := engine.New(opts, log)

	startTime := time.Now()
	resultChan := make(chan *engine.Result, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := eng.Run(ctx, src, nil)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var result *engine.Result
	for result == nil {
		select {
		case err := <-errChan:
			fmt.Printf("\nError processing video: %v\n", err)
			os.Exit(1)
		case result = <-resultChan:
		case <-ticker.C:
			printProgress(eng.Progress())
		}
	}
	fmt.Println()

	outputs, err := writeFrames(result, outDir)
	if err != nil {
		fmt.Printf("Error writing frames: %v\n", err)
		os.Exit(1)
	}

	catalogPath := args["catalog"]
	if catalogPath == "" {
		catalogPath = utils.GetDefaultCatalogPath()
	}
	if err := recordRun(catalogPath, videoPath, opts, result, outputs); err != nil {
		log.Warn("failed to record run in catalog", zap.Error(err))
	}

	if result.Stopped {
		fmt.Println("Processing stopped by request; partial results saved.")
	}
	fmt.Printf("Extraction complete in %v.\n", time.Since(startTime).Round(time.Second))
	fmt.Printf("Detected %d scene changes, removed %d duplicates, kept %d unique frames.\n",
		result.CandidateCount, result.DuplicatesRemoved, len(result.Frames))
	fmt.Printf("Similarity strategy: %s\n", result.Strategy)
	fmt.Printf("Frames written to: %s (%d files)\n", outDir, len(outputs))
	fmt.Printf("Catalog: %s (run %s)\n", catalogPath, result.RunID)
}

// buildEngineOptions layers command-line flags over environment defaults.
func buildEngineOptions(args map[string]string, cfg *config.Config) (engine.Options, error) {
	opts := engine.Options{
		ChangeThreshold:          cfg.ChangeThreshold,
		MinFrameInterval:         cfg.MinFrameInterval,
		FrameSkip:                cfg.FrameSkip,
		UseEmbedding:             cfg.UseEmbedding,
		ModelPath:                cfg.ModelPath,
		DedupSimilarityThreshold: cfg.DedupSimilarityThreshold,
		GeneratePreviews:         true,
		Preview: preview.Options{
			MaxWidth:  cfg.PreviewMaxWidth,
			MaxHeight: cfg.PreviewMaxHeight,
			Quality:   cfg.PreviewQuality,
			Workers:   signalhandler.OptimalWorkers(),
		},
	}

	var err error
	if s, ok := args["threshold"]; ok {
		if opts.ChangeThreshold, err = utils.ParseThreshold(s); err != nil {
			return opts, err
		}
	}
	if s, ok := args["dedup-threshold"]; ok {
		if opts.DedupSimilarityThreshold, err = utils.ParseThreshold(s); err != nil {
			return opts, err
		}
	}
	if s, ok := args["min-interval"]; ok {
		if opts.MinFrameInterval, err = utils.ParsePositiveInt(s, 0); err != nil {
			return opts, err
		}
	}
	if s, ok := args["skip"]; ok {
		if opts.FrameSkip, err = utils.ParsePositiveInt(s, 1); err != nil {
			return opts, err
		}
	}
	if _, ok := args["no-embedding"]; ok {
		opts.UseEmbedding = false
	}
	if s, ok := args["model"]; ok && s != "" {
		opts.ModelPath = s
	}
	if _, ok := args["no-previews"]; ok {
		opts.GeneratePreviews = false
	}
	return opts, nil
}

func printProgress(snap types.ProgressSnapshot) {
	switch snap.Stage {
	case types.StageExtracting:
		fmt.Printf("\rProgress: %s %.1f%% (frame %d/%d, %d detected, %.1f fps, ETA %.0fs)    ",
			snap.Stage, snap.Percent, snap.CurrentIndex, snap.TotalFrames,
			snap.DetectedCount, snap.Throughput, snap.RemainingSeconds)
	case types.StageRemovingDuplicates:
		fmt.Printf("\rProgress: %s %.1f%% (%d/%d reviewed, %d kept)                    ",
			snap.Stage, snap.Percent, snap.CurrentIndex, snap.TotalFrames, snap.KeptCount)
	case types.StageGeneratingPreviews:
		fmt.Printf("\rProgress: %s %.1f%%                                              ",
			snap.Stage, snap.Percent)
	}
}

// writeFrames saves the final unique frames and their thumbnails under
// outDir, returning frame index -> written path.
func writeFrames(result *engine.Result, outDir string) (map[int]string, error) {
	outputs := make(map[int]string, len(result.Frames))

	for _, frame := range result.Frames {
		data, err := preview.Encode(frame, 0, 0, 95)
		if err != nil {
			return nil, fmt.Errorf("cannot encode frame %d: %w", frame.Index, err)
		}
		path := filepath.Join(outDir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("cannot write frame %d: %w", frame.Index, err)
		}
		outputs[frame.Index] = path
	}

	if len(result.Previews) > 0 {
		previewDir := filepath.Join(outDir, "previews")
		if err := os.MkdirAll(previewDir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create preview directory: %w", err)
		}
		for _, p := range result.Previews {
			path := filepath.Join(previewDir, fmt.Sprintf("frame_%06d.jpg", p.Index))
			if err := os.WriteFile(path, p.Data, 0o644); err != nil {
				return nil, fmt.Errorf("cannot write preview %d: %w", p.Index, err)
			}
		}
	}

	return outputs, nil
}

func recordRun(catalogPath, videoPath string, opts engine.Options, result *engine.Result, outputs map[int]string) error {
	db, err := catalog.Open(catalogPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return catalog.SaveRun(db, catalog.Run{
		ID:                result.RunID.String(),
		Source:            videoPath,
		Strategy:          result.Strategy,
		ChangeThreshold:   opts.ChangeThreshold,
		MinFrameInterval:  opts.MinFrameInterval,
		FrameSkip:         opts.FrameSkip,
		DedupThreshold:    opts.DedupSimilarityThreshold,
		CandidateCount:    result.CandidateCount,
		UniqueCount:       len(result.Frames),
		DuplicatesRemoved: result.DuplicatesRemoved,
		Stopped:           result.Stopped,
		ElapsedSeconds:    result.Elapsed.Seconds(),
	}, result.Frames, outputs)
}

func handleStatsCommand(args map[string]string) {
	catalogPath := args["catalog"]
	if catalogPath == "" {
		catalogPath = utils.GetDefaultCatalogPath()
	}
	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		fmt.Printf("Catalog does not exist: %s. Run extract first.\n", catalogPath)
		os.Exit(1)
	}

	db, err := catalog.Open(catalogPath)
	if err != nil {
		fmt.Printf("Error opening catalog: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	stats, err := catalog.GetStats(db)
	if err != nil {
		fmt.Printf("Error reading catalog: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Catalog: %s\n", catalogPath)
	fmt.Printf("- Total runs: %d (%d stopped early)\n", stats.TotalRuns, stats.StoppedRuns)
	fmt.Printf("- Total frames kept: %d\n", stats.TotalFrames)
	fmt.Printf("- Total duplicates removed: %d\n", stats.TotalRemoved)
}
