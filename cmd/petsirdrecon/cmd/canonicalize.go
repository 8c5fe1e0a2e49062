package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
	"petsirdrecon/pkg/description"
	"petsirdrecon/pkg/geometry"
	"petsirdrecon/pkg/lut"
)

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize SCANNER",
	Short: "Canonicalize a scanner description and print its ring layout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCanonicalize,
}

var listLayoutsCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical layouts stored in the LUT database",
	Args:  cobra.NoArgs,
	RunE:  runListLayouts,
}

func init() {
	rootCmd.AddCommand(canonicalizeCmd)
	canonicalizeCmd.AddCommand(listLayoutsCmd)
	canonicalizeCmd.Flags().Bool("store", false, "store the layout in the LUT database")
	canonicalizeCmd.Flags().Bool("detectors", false, "print every detector")
}

func runCanonicalize(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	info, err := description.LoadScanner(args[0])
	if err != nil {
		return err
	}
	scanner, table, err := geometry.Canonicalize(info, geometry.WithLogger(logger))
	if err != nil {
		return err
	}

	printSummary(scanner.Summary)

	if showDetectors, _ := cmd.Flags().GetBool("detectors"); showDetectors {
		fmt.Println("\nDetectors (flat id: ring, index, key, position):")
		for i := 0; i < scanner.NumDetectors(); i++ {
			id := models.DetID(i)
			key, err := table.HierarchicalKeyOf(id)
			if err != nil {
				return err
			}
			p := scanner.Positions[i]
			fmt.Printf("%6d: ring %3d, index %4d, type %d module %d element %d, [%.3f, %.3f, %.3f]\n",
				i, scanner.Ring(id), scanner.TransaxialIndex(id), key.Type, key.Module, key.Element, p.X, p.Y, p.Z)
		}
	}

	if store, _ := cmd.Flags().GetBool("store"); store {
		if cfg.Output.LUTDatabase == "" {
			return fmt.Errorf("--lut-db or %s required to store a layout", LUTDatabaseEnv)
		}
		id, err := storeLayout(cmd.Context(), cfg.Output.LUTDatabase, scanner, table, logger)
		if err != nil {
			return err
		}
		fmt.Printf("\nLayout stored with id: %s\n", id)
	}
	return nil
}

func runListLayouts(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Output.LUTDatabase == "" {
		return fmt.Errorf("--lut-db or %s required", LUTDatabaseEnv)
	}

	db, err := lut.Open(cfg.Output.LUTDatabase)
	if err != nil {
		return err
	}
	store, err := lut.NewStore(db, logger)
	if err != nil {
		db.Close()
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	records, err := store.List(ctx)
	if err != nil {
		return err
	}

	for _, r := range records {
		fmt.Printf("%s  %-20s %3d rings x %4d detectors  %s\n",
			r.ID, r.Summary.ModelName, r.Summary.RingCount, r.Summary.DetectorsPerRing,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("%d layouts\n", len(records))
	return nil
}

func storeLayout(ctx context.Context, url string, scanner *geometry.Scanner, table *correspondence.Table, logger *slog.Logger) (string, error) {
	db, err := lut.Open(url)
	if err != nil {
		return "", err
	}
	store, err := lut.NewStore(db, logger)
	if err != nil {
		db.Close()
		return "", err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return "", err
	}
	return store.Save(ctx, scanner, table)
}

func printSummary(s geometry.Summary) {
	fmt.Println("================================")
	fmt.Printf("Scanner: %s\n", s.ModelName)
	fmt.Println("================================")
	fmt.Printf("Rings: %d\n", s.RingCount)
	fmt.Printf("Detectors per ring: %d\n", s.DetectorsPerRing)
	fmt.Printf("Axial FOV: %.3f mm\n", s.AxialFOV)
	fmt.Printf("Max radial distance: %.3f mm\n", s.MaxRadialDistance)
	fmt.Printf("Crystal (axial x transaxial x depth): %.3f x %.3f x %.3f mm\n",
		s.CrystalAxialSize, s.CrystalTransaxialSize, s.CrystalDepth)
}
