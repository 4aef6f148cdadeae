package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/storage"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

// genmeta builds meta.json from a directory of annotations. The cache of each
// frame is taken from the annotation of the frame before it.
func main() {
	parser := argparse.NewParser("genmeta", "Build the identity cache (meta.json) of every frame from its predecessor's annotation")
	inputDir := parser.String("i", "input-dir", &argparse.Options{Help: "Directory of annotations", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output file. Default is meta.json in the input directory."})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	annotations, err := storage.NewStorageFS(logger, *inputDir)
	check(err)
	store := &framestore.Store{Log: logger, Annotations: annotations}
	meta, err := store.BuildMeta()
	check(err)

	if *output == "" {
		check(store.WriteMeta(meta))
		logger.Infof("Wrote %v entries to %v", len(meta), filepath.Join(*inputDir, framestore.MetaFilename))
		return
	}
	b, err := annotation.EncodeMetaFile(meta)
	check(err)
	dir, err := storage.NewStorageFS(logger, filepath.Dir(*output))
	check(err)
	check(storage.WriteFile(dir, filepath.Base(*output), bytes.NewReader(b)))
	logger.Infof("Wrote %v entries to %v", len(meta), *output)
}
