package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/convert"
	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/cyclopcam/masksync/pkg/sequence"
	"github.com/cyclopcam/masksync/pkg/storage"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("json2mask", "Rasterize polygon annotations into label masks")
	file := parser.String("f", "file", &argparse.Options{Help: "Rasterize a single annotation (frame_000001.json)"})
	inputDir := parser.String("i", "input-dir", &argparse.Options{Help: "Rasterize every annotation in this directory"})
	outputDir := parser.String("o", "output-dir", &argparse.Options{Help: "Directory for masks", Required: true})
	framesDir := parser.String("", "frames-dir", &argparse.Options{Help: "Directory of frame images (frame_000001.jpg). Each mask takes the size of its frame."})
	width := parser.Int("", "width", &argparse.Options{Help: "Mask width, if --frames-dir is not given", Default: 0})
	height := parser.Int("", "height", &argparse.Options{Help: "Mask height, if --frames-dir is not given", Default: 0})
	modeName := parser.Selector("", "mode", []string{"color", "scalar"}, &argparse.Options{Help: "Mask encoding", Default: "color"})
	settingsFile := parser.String("s", "settings", &argparse.Options{Help: "Conversion settings JSON (colors)"})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Parallel workers. 0 means one per CPU.", Default: 0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if (*file == "") == (*inputDir == "") {
		fmt.Print(parser.Usage("Specify exactly one of --file or --input-dir"))
		os.Exit(1)
	}
	size := sequence.MaskSize{Width: *width, Height: *height}
	if *framesDir == "" && (size.Width <= 0 || size.Height <= 0) {
		fmt.Print(parser.Usage("Specify --frames-dir, or --width and --height"))
		os.Exit(1)
	}
	mode, err := palette.ParseMode(*modeName)
	check(err)

	logger, err := logs.NewLog()
	check(err)

	settings, err := convert.LoadSettings(*settingsFile)
	check(err)
	converter, err := convert.NewConverter(logger, settings)
	check(err)

	annotationDir := *inputDir
	if *file != "" {
		annotationDir = filepath.Dir(*file)
	}
	store := &framestore.Store{Log: logger}
	store.Annotations, err = storage.NewStorageFS(logger, annotationDir)
	check(err)
	store.Masks, err = storage.NewStorageFS(logger, *outputDir)
	check(err)
	if *framesDir != "" {
		store.Frames, err = storage.NewStorageFS(logger, *framesDir)
		check(err)
	}
	runner := sequence.NewRunner(logger, converter, store, sequence.Options{Workers: *workers})

	if *file != "" {
		key := annotation.KeyFromFilename(*file)
		if err := runner.RasterizeFrame(key, mode, size); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.Infof("Wrote %v", annotation.MaskFilename(key))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := runner.Rasterize(ctx, mode, size)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	fmt.Printf("Rasterized %v frames (%v failed) in %v\n", report.Converted, report.Failed, report.RasterizeTime)
}
