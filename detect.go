// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"flag"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// DetectBiallelic reports whether a tidy dataset contains only
// biallelic markers.
//
// A GT_BIN column is taken as prior evidence of biallelic data. An ALT
// column is authoritative: a marker with a comma in ALT has more than
// one alternate allele. Otherwise the genotype strings are inspected,
// on every marker for small panels and on a 30% random sample for
// large ones. The sampled branch is a heuristic and is allowed to be
// nondeterministic.
func DetectBiallelic(ds *TidyDataset) bool {
	if ds.HasGTBin {
		return true
	}
	if ds.HasALT {
		max := 0
		for _, rec := range ds.Records {
			if rec.Alt == "" {
				continue
			}
			if n := strings.Count(rec.Alt, ",") + 1; n > max {
				max = n
			}
		}
		return max <= 1
	}

	groups := ds.groupByMarker()
	markers := sortedKeys(groups)
	smallPanel := len(markers) < 100
	sampled := markers
	if !smallPanel {
		n := len(markers) * 30 / 100
		if n < 1 {
			n = 1
		}
		sampled = make([]string, 0, n)
		for _, i := range rand.Perm(len(markers))[:n] {
			sampled = append(sampled, markers[i])
		}
	}

	maxAlleles := 0
	allOverTwo := true
	for _, marker := range sampled {
		seen := map[string]bool{}
		for _, rec := range groups[marker] {
			if a1, a2, ok := rec.alleles(); ok {
				seen[a1] = true
				seen[a2] = true
			}
		}
		if len(seen) > maxAlleles {
			maxAlleles = len(seen)
		}
		if len(seen) <= 2 {
			allOverTwo = false
		}
	}
	if smallPanel {
		return !allOverTwo
	}
	return maxAlleles <= 4
}

type detectcmd struct{}

func (cmd *detectcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "tidy genotype `file` (tsv or tsv.gz)")
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
	if DetectBiallelic(ds) {
		fmt.Fprintln(stdout, "biallelic")
	} else {
		fmt.Fprintln(stdout, "multiallelic")
	}
	return 0
}
