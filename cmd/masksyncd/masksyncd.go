package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/masksync/server"
)

func main() {
	parser := argparse.NewParser("masksyncd", "Backend of the annotation editor: stores annotations, and converts between masks and polygons")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "masksync.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8082"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	s, err := server.NewServer(*configFilePath)
	if err != nil {
		panic(err)
	}
	s.ListenForKillSignals()
	if err := s.ListenHTTP(*port); err != nil {
		fmt.Printf("%v\n", err)
	}
}
