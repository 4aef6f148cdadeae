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
	"github.com/cyclopcam/masksync/pkg/sequence"
	"github.com/cyclopcam/masksync/pkg/storage"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("mask2json", "Convert label masks into polygon annotations, keeping object identities stable across frames")
	file := parser.String("f", "file", &argparse.Options{Help: "Convert a single mask (frame_000001.png)"})
	inputDir := parser.String("i", "input-dir", &argparse.Options{Help: "Convert every mask in this directory"})
	outputDir := parser.String("o", "output-dir", &argparse.Options{Help: "Directory for annotations", Required: true})
	metaFile := parser.String("m", "meta", &argparse.Options{Help: "Meta JSON holding the identity cache of each frame. Without --meta or --chain, every identity is new."})
	chain := parser.Flag("c", "chain", &argparse.Options{Help: "Take identities from the annotation of the previous frame, in the output directory", Default: false})
	settingsFile := parser.String("s", "settings", &argparse.Options{Help: "Conversion settings JSON (colors, simplification, reconciliation)"})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Vectorization workers. 0 means one per CPU.", Default: 0})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log every match decision", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if (*file == "") == (*inputDir == "") {
		fmt.Print(parser.Usage("Specify exactly one of --file or --input-dir"))
		os.Exit(1)
	}
	if *metaFile != "" && *chain {
		fmt.Print(parser.Usage("--meta and --chain are mutually exclusive"))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	settings, err := convert.LoadSettings(*settingsFile)
	check(err)
	converter, err := convert.NewConverter(logger, settings)
	check(err)
	converter.SetVerbose(*verbose)

	options := sequence.Options{Workers: *workers}
	if *metaFile != "" {
		raw, err := os.ReadFile(*metaFile)
		check(err)
		options.Meta, err = annotation.ParseMetaFile(raw)
		check(err)
	} else if !*chain {
		// An empty cache for every frame
		options.Meta = annotation.MetaFile{}
	}

	maskDir := *inputDir
	if *file != "" {
		maskDir = filepath.Dir(*file)
	}
	masks, err := storage.NewStorageFS(logger, maskDir)
	check(err)
	annotations, err := storage.NewStorageFS(logger, *outputDir)
	check(err)
	store := &framestore.Store{
		Log:         logger,
		Masks:       masks,
		Annotations: annotations,
	}
	runner := sequence.NewRunner(logger, converter, store, options)

	if *file != "" {
		key := annotation.KeyFromFilename(*file)
		res, err := runner.ConvertFrame(key)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.Infof("Wrote %v: %v classes, %v carried, %v minted", annotation.AnnotationFilename(key), res.Classes, res.Carried, res.Minted)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := runner.Run(ctx)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %v frames (%v seed, %v failed). %v identities carried, %v minted. Mean match score %.3f\n",
		report.Converted, report.Seeds, report.Failed, report.Carried, report.Minted, report.MeanScore)
	fmt.Printf("Vectorize %v, reconcile %v\n", report.VectorizeTime, report.ReconcileTime)
}
