// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var chisquared = distuv.ChiSquared{K: 1, Src: rand.NewSource(rand.Uint64())}

// MarkerStats summarizes one biallelic marker across the whole
// dataset: genotype counts, call rate, allele frequencies, and a
// Hardy-Weinberg equilibrium χ² p-value (1 d.f.). HWEPValue is nil
// when no genotypes were called.
type MarkerStats struct {
	Marker    string
	HomRef    int
	Het       int
	HomAlt    int
	Missing   int
	CallRate  float64
	RefFreq   float64
	AltFreq   float64
	MAF       float64
	HWEPValue *float64 `json:",omitempty"`
}

// hwePValue tests observed genotype counts against Hardy-Weinberg
// expectations derived from the observed allele frequencies.
func hwePValue(homRef, het, homAlt int) float64 {
	n := float64(homRef + het + homAlt)
	p := (2*float64(homRef) + float64(het)) / (2 * n)
	q := 1 - p
	exp := [3]float64{n * p * p, 2 * n * p * q, n * q * q}
	obs := [3]float64{float64(homRef), float64(het), float64(homAlt)}
	sum := 0.0
	for i := range exp {
		if exp[i] == 0 {
			continue
		}
		d := obs[i] - exp[i]
		sum += d * d / exp[i]
	}
	return 1 - chisquared.CDF(sum)
}

// MarkerStatistics computes per-marker summary statistics for a
// biallelic dataset, recoding dosages from GT first if needed.
func MarkerStatistics(ds *TidyDataset, maxGoroutines int) ([]MarkerStats, error) {
	if ds == nil || len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: no tidy dataset", ErrMissingInput)
	}
	if !DetectBiallelic(ds) {
		return nil, fmt.Errorf("marker statistics need a biallelic dataset")
	}
	if !ds.HasGTBin {
		if err := recodeDosage(ds, maxGoroutines); err != nil {
			return nil, err
		}
	}
	type counts struct{ homRef, het, homAlt, missing int }
	acc := map[string]*counts{}
	for _, rec := range ds.Records {
		c := acc[rec.Marker]
		if c == nil {
			c = &counts{}
			acc[rec.Marker] = c
		}
		switch rec.Dosage {
		case 0:
			c.homRef++
		case 1:
			c.het++
		case 2:
			c.homAlt++
		default:
			c.missing++
		}
	}
	markers := make([]string, 0, len(acc))
	for m := range acc {
		markers = append(markers, m)
	}
	sort.Strings(markers)
	out := make([]MarkerStats, 0, len(markers))
	for _, marker := range markers {
		c := acc[marker]
		stats := MarkerStats{
			Marker:  marker,
			HomRef:  c.homRef,
			Het:     c.het,
			HomAlt:  c.homAlt,
			Missing: c.missing,
		}
		called := c.homRef + c.het + c.homAlt
		total := called + c.missing
		if total > 0 {
			stats.CallRate = float64(called) / float64(total)
		}
		if called > 0 {
			stats.RefFreq = (2*float64(c.homRef) + float64(c.het)) / (2 * float64(called))
			stats.AltFreq = 1 - stats.RefFreq
			stats.MAF = stats.AltFreq
			if stats.RefFreq < stats.AltFreq {
				stats.MAF = stats.RefFreq
			}
			p := hwePValue(c.homRef, c.het, c.homAlt)
			stats.HWEPValue = &p
		}
		out = append(out, stats)
	}
	return out, nil
}

type statscmd struct{}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "tidy genotype `file` (tsv or tsv.gz)")
	outputFilename := flags.String("o", "-", "output `file` (json)")
	maxGoroutines := flags.Int("max-goroutines", defaultConfig().MaxGoroutines, "maximum `concurrency` for dosage recoding")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	ds, err := LoadTidy(*inputFilename)
	if err != nil {
		return 1
	}
	ds, _ = DetectAllMissing(ds)
	markerStats, err := MarkerStatistics(ds, *maxGoroutines)
	if err != nil {
		return 1
	}

	individuals := map[string]bool{}
	for _, rec := range ds.Records {
		individuals[rec.Individual] = true
	}
	ret := struct {
		Markers     int
		Individuals int
		Populations int
		PerMarker   []MarkerStats
	}{
		Markers:     len(markerStats),
		Individuals: len(individuals),
		Populations: len(ds.pops()),
		PerMarker:   markerStats,
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	err = json.NewEncoder(bufw).Encode(ret)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
