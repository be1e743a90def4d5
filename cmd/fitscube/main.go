package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"

	"github.com/lh-astro/fitscube/pkg/buildlog"
	"github.com/lh-astro/fitscube/pkg/cube"
	"github.com/lh-astro/fitscube/pkg/fits"
)

func main() {
	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)

	// Build command flags
	buildConfig := buildCmd.String("c", "fitscube.yaml", "Build configuration file (YAML)")
	buildOutput := buildCmd.String("o", "", "Override output path from the configuration")
	buildOverwrite := buildCmd.Bool("overwrite", false, "Replace an existing cube file")
	buildWorkers := buildCmd.Int("workers", 0, "Override plane-writer pool size")
	buildVerbose := buildCmd.Bool("v", false, "Verbose logging")

	// Inspect command flags
	inspectFile := inspectCmd.String("f", "", "FITS file to inspect")
	inspectCards := inspectCmd.Bool("cards", false, "Dump all header cards")

	if len(os.Args) < 2 {
		fmt.Println("Expected 'build' or 'inspect' subcommand")
		fmt.Println("Usage:")
		fmt.Println("  fitscube build -c cube.yaml [-o out.fits] [-overwrite] [-workers N]")
		fmt.Println("  fitscube inspect -f cube.fits [-cards]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		buildCmd.Parse(os.Args[2:])
		runBuild(*buildConfig, *buildOutput, *buildOverwrite, *buildWorkers, *buildVerbose)
	case "inspect":
		inspectCmd.Parse(os.Args[2:])
		if *inspectFile == "" {
			fmt.Println("Error: -f is required")
			inspectCmd.PrintDefaults()
			os.Exit(1)
		}
		runInspect(*inspectFile, *inspectCards)
	default:
		fmt.Printf("%q is not a valid command.\n", os.Args[1])
		fmt.Println("Valid commands: 'build' or 'inspect'")
		os.Exit(1)
	}
}

func runBuild(configPath, output string, overwrite bool, workers int, verbose bool) {
	cfg, err := cube.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if output != "" {
		cfg.Output = output
	}
	if overwrite {
		cfg.Overwrite = true
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	buildlog.SetVerbose(verbose)
	cfg.Log.SetLogger()

	builder, err := cube.NewBuilder(cfg)
	if err != nil {
		fmt.Printf("Error preparing build: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := builder.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		if errors.Is(err, cube.ErrAlreadyExists) {
			fmt.Printf("Error: %v (use -overwrite to replace)\n", err)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printReport(r *cube.Report) {
	fmt.Printf("Cube: %d x %d x %d channels x %d polarizations (%s)\n",
		r.Layout.Shape.X.Extent, r.Layout.Shape.Y.Extent,
		r.Layout.Shape.Freq.Extent, r.Layout.Shape.Pol.Extent,
		r.Layout.Shape.Element)
	fmt.Printf("File size: %s\n", humanize.IBytes(uint64(r.Layout.FileTotalSize)))
	fmt.Printf("Planes written: %d\n", r.Succeeded)
	if len(r.Flagged) > 0 {
		fmt.Printf("Flagged channels: %v\n", r.Flagged)
	}
	for _, f := range r.Failures {
		fmt.Printf("FAILED plane (pol=%d, chan=%d) %s: %v\n", f.Coord.Pol, f.Coord.Chan, f.Path, f.Err)
	}
}

func runInspect(path string, dumpCards bool) {
	im, err := fits.OpenImage(path)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer im.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("BITPIX: %d\n", im.Bitpix())

	naxis, _ := im.Header().Int("NAXIS")
	fmt.Printf("NAXIS: %d\n", naxis)
	for i := int64(1); i <= naxis; i++ {
		extent, _ := im.Header().Int(fmt.Sprintf("NAXIS%d", i))
		fmt.Printf("NAXIS%d: %d\n", i, extent)
	}
	fmt.Printf("Data size: %s\n", humanize.IBytes(uint64(im.DataSize())))

	if dumpCards {
		fmt.Println()
		for _, c := range im.Header().Cards() {
			if c.Value != nil {
				fmt.Printf("%-8s = %v", c.Keyword, c.Value)
				if c.Comment != "" {
					fmt.Printf(" / %s", c.Comment)
				}
				fmt.Println()
			} else {
				fmt.Printf("%-8s %s\n", c.Keyword, c.Comment)
			}
		}
	}
}
