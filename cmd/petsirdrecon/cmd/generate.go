package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"petsirdrecon/pkg/config"
	"petsirdrecon/pkg/description"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a ring scanner description and a synthetic event stream",
	Long: `Generate writes the ring scanner described by the generator section of
the config file and, optionally, a stream of uniformly distributed prompt
coincidences for it.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().String("scanner", "scanner.yaml", "output scanner description")
	generateCmd.Flags().String("events", "", "output time-block stream; empty skips events")
	generateCmd.Flags().Int("blocks", 10, "number of event blocks")
	generateCmd.Flags().Int("events-per-block", 1000, "prompt coincidences per block")
	generateCmd.Flags().Uint32("block-duration", 100, "block duration in ms")
	generateCmd.Flags().Int64("seed", 1, "random seed")
	generateCmd.Flags().String("write-config", "", "also write a default config file to this path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("write-config"); path != "" {
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Default config written to: %s\n", path)
	}

	info, err := description.Cylinder(cfg.Generator)
	if err != nil {
		return fmt.Errorf("failed to build scanner: %w", err)
	}

	scannerPath, _ := cmd.Flags().GetString("scanner")
	if err := description.SaveScanner(info, scannerPath); err != nil {
		return err
	}
	fmt.Printf("Scanner %q (%d rings x %d detectors) written to: %s\n",
		info.ModelName, cfg.Generator.Rings, cfg.Generator.DetectorsPerRing, scannerPath)

	eventsPath, _ := cmd.Flags().GetString("events")
	if eventsPath == "" {
		return nil
	}

	var synth description.SyntheticParams
	synth.Blocks, _ = cmd.Flags().GetInt("blocks")
	synth.EventsPerBlock, _ = cmd.Flags().GetInt("events-per-block")
	synth.BlockDuration, _ = cmd.Flags().GetUint32("block-duration")
	synth.Seed, _ = cmd.Flags().GetInt64("seed")

	blocks, err := description.SyntheticTimeBlocks(info, synth)
	if err != nil {
		return fmt.Errorf("failed to generate events: %w", err)
	}
	if err := description.SaveTimeBlocks(blocks, eventsPath); err != nil {
		return err
	}

	logger.Debug("synthetic stream generated", "module", "cli", "seed", synth.Seed)
	fmt.Printf("%d blocks of %d events written to: %s\n", synth.Blocks, synth.EventsPerBlock, eventsPath)
	return nil
}
