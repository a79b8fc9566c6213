// Package main implements the tracelens-cachesim binary.
// It runs an annotated CSV trace through a set-associative LRU cache
// model and keeps only the accesses that miss.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/tracelens/tracelens/internal/cachesim"
)

// Config holds the simulator configuration.
type Config struct {
	Input         string
	Output        string
	SizeBytes     int
	BlockSize     int
	Associativity int
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Input, "input", "", "Annotated CSV trace to filter (required)")
	flag.StringVar(&cfg.Output, "output", "", "Filtered CSV trace path (required)")
	flag.IntVar(&cfg.SizeBytes, "cache-size", 8*1024*1024, "Total cache size in bytes")
	flag.IntVar(&cfg.BlockSize, "block-size", 64, "Cache block size in bytes")
	flag.IntVar(&cfg.Associativity, "associativity", 8, "Ways per set")
	flag.Parse()

	if cfg.Input == "" || cfg.Output == "" {
		log.Fatalf("-input and -output are required")
	}
	return cfg
}

func main() {
	cfg := parseFlags()

	cache, err := cachesim.New(cfg.SizeBytes, cfg.BlockSize, cfg.Associativity)
	if err != nil {
		log.Fatalf("Invalid cache geometry: %v", err)
	}
	log.Printf("Simulating %dKB cache, %dB blocks, %d-way (%d sets)",
		cfg.SizeBytes/1024, cfg.BlockSize, cfg.Associativity, cache.Sets())

	in, err := os.Open(cfg.Input)
	if err != nil {
		log.Fatalf("Failed to open trace: %v", err)
	}
	defer in.Close()

	out, err := os.Create(cfg.Output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer out.Close()

	res, err := cache.FilterTrace(in, out)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	hitRate := 0.0
	if res.Accesses > 0 {
		hitRate = float64(res.Hits) / float64(res.Accesses) * 100
	}
	log.Printf("Filtered %d accesses: %d hits dropped (%.1f%%), %d misses kept, %d rowclones passed through",
		res.Accesses, res.Hits, hitRate, res.Misses, res.Rowclones)
	if res.Malformed > 0 {
		log.Printf("Warning: %d malformed lines skipped", res.Malformed)
	}
}
