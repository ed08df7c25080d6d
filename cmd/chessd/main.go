package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/evanreyes/chessd/internal/engine"
	"github.com/evanreyes/chessd/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
	threads    = flag.Int("threads", engine.DefaultThreads, "number of search worker threads")
	bookPath   = flag.String("book", "", "path to a Polyglot opening book file")
)

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	eng := engine.NewEngine(*hashMB)
	eng.SetThreads(*threads)

	if *bookPath != "" {
		if err := eng.LoadBook(*bookPath); err != nil {
			log.Printf("warning: book not loaded: %v", err)
		}
	}

	protocol := uci.New(eng)
	protocol.Run()
}
