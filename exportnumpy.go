// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// dosageMatrix flattens a biallelic dataset to an individuals×markers
// dosage matrix (row-major), with -1 marking missing genotypes. Rows
// and columns are sorted by name so the layout is reproducible.
func dosageMatrix(ds *TidyDataset) (matrix []int16, individuals, markers []string) {
	indSet := map[string]bool{}
	for _, rec := range ds.Records {
		indSet[rec.Individual] = true
	}
	for ind := range indSet {
		individuals = append(individuals, ind)
	}
	sort.Strings(individuals)
	markers = ds.markers()

	row := map[string]int{}
	for i, ind := range individuals {
		row[ind] = i
	}
	col := map[string]int{}
	for j, m := range markers {
		col[m] = j
	}
	matrix = make([]int16, len(individuals)*len(markers))
	for i := range matrix {
		matrix[i] = -1
	}
	for _, rec := range ds.Records {
		if rec.Dosage >= 0 {
			matrix[row[rec.Individual]*len(markers)+col[rec.Marker]] = int16(rec.Dosage)
		}
	}
	return matrix, individuals, markers
}

type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "tidy genotype `file` (tsv or tsv.gz)")
	outputFilename := flags.String("o", "", "output `file` (default: snpkit_dosage_<timestamp>.npy)")
	labelsFilename := flags.String("output-labels", "", "also output individual labels csv `file`")
	markersFilename := flags.String("output-markers", "", "also output marker labels csv `file`")
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
	if len(ds.Records) == 0 {
		err = fmt.Errorf("%w: all genotypes missing", ErrEmptyResult)
		return 1
	}
	if !DetectBiallelic(ds) {
		err = fmt.Errorf("numpy export needs a biallelic dataset")
		return 1
	}
	if !ds.HasGTBin {
		if err = recodeDosage(ds, *maxGoroutines); err != nil {
			return 1
		}
	}
	matrix, individuals, markers := dosageMatrix(ds)

	outPath := *outputFilename
	if outPath == "" {
		outPath = generatedFilename("snpkit_dosage", ".npy")
	}
	outPath, err = uniquePath(outPath)
	if err != nil {
		return 1
	}
	err = writeFileAtomic(outPath, func(w io.Writer) error {
		bufw := bufio.NewWriter(w)
		npw, err := gonpy.NewWriter(nopCloser{bufw})
		if err != nil {
			return err
		}
		npw.Shape = []int{len(individuals), len(markers)}
		if err := npw.WriteInt16(matrix); err != nil {
			return err
		}
		return bufw.Flush()
	})
	if err != nil {
		return 1
	}
	log.Infof("wrote %s (%d individuals × %d markers)", outPath, len(individuals), len(markers))

	writeLabels := func(path string, labels []string) error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		for i, label := range labels {
			if _, err := fmt.Fprintf(f, "%d,%q\n", i, label); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		return f.Close()
	}
	if *labelsFilename != "" {
		log.Infof("writing labels to %s", *labelsFilename)
		if err = writeLabels(*labelsFilename, individuals); err != nil {
			return 1
		}
	}
	if *markersFilename != "" {
		log.Infof("writing marker labels to %s", *markersFilename)
		if err = writeLabels(*markersFilename, markers); err != nil {
			return 1
		}
	}
	fmt.Fprintln(stdout, outPath)
	return 0
}
