package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"petsirdrecon/pkg/reconstruction"
)

var runCmd = &cobra.Command{
	Use:   "run SCANNER EVENTS",
	Short: "Canonicalize, decode and run the hit counter",
	Args:  cobra.ExactArgs(2),
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("map", "", "detector hit map output (JPEG); overrides output.detectorMap")
	runCmd.Flags().BoolP("verbose", "v", false, "print the per-ring breakdown")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("map") {
		cfg.Output.DetectorMap, _ = cmd.Flags().GetString("map")
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Output.Verbose, _ = cmd.Flags().GetBool("verbose")
	}

	params := &reconstruction.Params{
		ScannerFile:            args[0],
		EventsFile:             args[1],
		NumCores:               cfg.Processing.NumCores,
		EnableTOF:              cfg.ListMode.EnableTOF,
		CacheSize:              cfg.Sensitivity.CacheSize,
		UseScannerEfficiencies: cfg.Sensitivity.UseScannerEfficiencies,
		LUTDatabase:            cfg.Output.LUTDatabase,
		DetectorMap:            cfg.Output.DetectorMap,
		Logger:                 logger,
	}

	fmt.Println("Starting list-mode preparation...")
	fmt.Printf("Scanner: %s\n", params.ScannerFile)
	fmt.Printf("Events: %s\n", params.EventsFile)
	fmt.Printf("Using %d CPU cores\n", params.NumCores)

	start := time.Now()
	reconstructor := reconstruction.NewReconstructor(params)
	if err := reconstructor.Process(cmd.Context()); err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	elapsed := time.Since(start)

	metrics := reconstructor.GetMetrics()
	fmt.Println("\n================================")
	fmt.Println("Run Metrics")
	fmt.Println("================================")
	fmt.Printf("Detectors: %d\n", metrics.Detectors)
	fmt.Printf("Events: %d\n", metrics.Events)
	fmt.Printf("Acquisition span: %d ms\n", metrics.AcquisitionSpan)
	if reconstructor.Events().HasTOF() {
		fmt.Printf("TOF: %.3f +/- %.3f ps\n", metrics.TOFMean, metrics.TOFStdDev)
	}
	fmt.Printf("Hits per detector: %.3f +/- %.3f\n", metrics.HitMean, metrics.HitStdDev)
	fmt.Printf("Hit uniformity: %.4f\n", metrics.HitUniformity)

	if cfg.Output.Verbose {
		fmt.Println("\nHits per ring:")
		for _, ring := range metrics.SortedRings() {
			fmt.Printf("  ring %3d: %d\n", ring, metrics.RingHits[ring])
		}
		fmt.Println("\nStage timings:")
		for _, stage := range []string{"canonicalize", "decode", "engine"} {
			fmt.Printf("  %-12s %v\n", stage, reconstructor.Timings()[stage])
		}
	}

	if id := reconstructor.LUTID(); id != "" {
		fmt.Printf("\nLayout stored with id: %s\n", id)
	}
	if cfg.Output.DetectorMap != "" {
		fmt.Printf("Detector map saved to: %s\n", cfg.Output.DetectorMap)
	}
	fmt.Printf("\nProcessing time: %v\n", elapsed)
	return nil
}
