// Command calibrate fits the feedforward gain and duty offset from a CSV
// of steady-state (rpm,duty) samples, typically collected by sweeping duty
// on blocks and logging the settled wheel speed.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/pid"
)

var (
	inPath = flag.String("in", "", "CSV file with rpm,duty rows (default stdin)")
	header = flag.Bool("header", true, "Skip the first row as a header")
)

func main() {
	flag.Parse()

	var in io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	samples, err := readSamples(in, *header)
	if err != nil {
		log.Fatalf("read samples: %v", err)
	}

	kff, offset, err := pid.FitFeedforward(samples)
	if err != nil {
		log.Fatalf("fit: %v", err)
	}

	fmt.Printf("samples: %d\n", len(samples))
	fmt.Printf("kff:     %.4f\n", kff)
	fmt.Printf("offset:  %.4f\n", offset)
	fmt.Printf("\nconfig overlay:\n")
	fmt.Printf("  {\"kff\": %.4f, \"duty_offset\": %.4f}\n", kff, offset)
}

func readSamples(r io.Reader, skipHeader bool) ([]pid.CalibrationSample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	var samples []pid.CalibrationSample
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		if first && skipHeader {
			first = false
			continue
		}
		first = false

		rpm, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rpm '%s': %w", row[0], err)
		}
		duty, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duty '%s': %w", row[1], err)
		}
		samples = append(samples, pid.CalibrationSample{RPM: rpm, Duty: duty})
	}
}
