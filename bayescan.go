// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"strings"

	log "github.com/sirupsen/logrus"
)

// BayescanResult is what WriteBayescan hands back in-process: where
// the file went, which format variant was emitted, and the two
// identifier dictionaries for decoding BayeScan's output.
type BayescanResult struct {
	Path      string
	Biallelic bool
	Pops      *Dictionary
	Markers   *Dictionary
}

// applyFilters runs the pre-processing pipeline shared by the
// bayescan and betas commands: relabeling, population selection,
// blacklists/whitelists, all-missing and monomorphic removal, the
// common-markers requirement, and the marker cap. Returns
// ErrEmptyResult if nothing survives.
func applyFilters(ds *TidyDataset, cfg Config) (*TidyDataset, error) {
	ds, err := RelabelPops(ds, cfg.PopLevels, cfg.PopLabels)
	if err != nil {
		return nil, err
	}
	ds = SelectPops(ds, cfg.PopSelect)
	if len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: no records match populations %v", ErrEmptyResult, cfg.PopSelect)
	}
	if cfg.BlacklistInd != "" {
		inds, err := readListFile(cfg.BlacklistInd)
		if err != nil {
			return nil, err
		}
		ds = BlacklistIndividuals(ds, inds)
	}
	if cfg.WhitelistMarkers != "" {
		markers, err := readListFile(cfg.WhitelistMarkers)
		if err != nil {
			return nil, err
		}
		ds = WhitelistMarkers(ds, markers)
	}
	ds, _ = DetectAllMissing(ds)
	if !cfg.KeepMonomorphic {
		ds, _ = DiscardMonomorphic(ds)
	}
	if cfg.CommonMarkers {
		ds, _ = KeepCommonMarkers(ds)
	}
	ds = CapMarkers(ds, cfg.MaxMarkers)
	if len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: no markers or individuals left", ErrEmptyResult)
	}
	if cfg.SNPLD > 0 {
		// Pruning itself happens in the ingestion pipeline; the
		// threshold is accepted here so one config file drives both.
		log.Warnf("snp_ld=%d recorded; linkage pruning is applied upstream", cfg.SNPLD)
	}
	return ds, nil
}

// WriteBayescan converts a tidy dataset to a BayeScan input file plus
// the two companion dictionary tables. The format variant (biallelic
// ref/alt pairs vs multiallelic tally vectors) follows the detected
// data regime.
func WriteBayescan(ds *TidyDataset, cfg Config) (*BayescanResult, error) {
	if ds == nil || len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: no tidy dataset", ErrMissingInput)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ds, err := applyFilters(ds, cfg)
	if err != nil {
		return nil, err
	}
	// The aggregator counts GT or GT_BIN genotypes. A dataset carrying
	// only GT_VCF would pass through as all-zero count lines; refuse it
	// instead.
	scorable := ds.HasGTBin
	if !scorable {
		for _, rec := range ds.Records {
			if rec.GT != "" {
				scorable = true
				break
			}
		}
	}
	if !scorable {
		return nil, fmt.Errorf("%w: no GT or GT_BIN genotypes to count", ErrEmptyResult)
	}

	biallelic := DetectBiallelic(ds)
	pops := popDictionary(ds)
	markers := markerDictionary(ds)

	var bi []BiallelicCount
	var multi []MultiallelicCount
	if biallelic {
		if !ds.HasGTBin {
			if err := recodeDosage(ds, cfg.MaxGoroutines); err != nil {
				return nil, err
			}
		}
		bi = AggregateBiallelic(ds, pops, markers)
	} else {
		multi = AggregateMultiallelic(ds, pops, markers)
	}
	logCountSummary(biallelic, markers.Len(), pops.Len())

	path := cfg.Output
	if path == "" {
		path = generatedFilename("snpkit_bayescan", ".txt")
	}
	path, err = uniquePath(path)
	if err != nil {
		return nil, err
	}
	err = writeFileAtomic(path, func(w io.Writer) error {
		return emitBayescan(w, markers.Len(), pops.Len(), bi, multi)
	})
	if err != nil {
		return nil, err
	}
	if err := writeDictionaries(path, pops, markers); err != nil {
		return nil, err
	}
	log.Infof("wrote %s", path)
	return &BayescanResult{Path: path, Biallelic: biallelic, Pops: pops, Markers: markers}, nil
}

// emitBayescan writes the fixed BayeScan grammar: the two header
// assignments, then one [pop] block per population with one count
// line per marker, ascending by marker code, blank line after every
// section. Exactly one of bi/multi is non-nil.
func emitBayescan(w io.Writer, nMarkers, nPops int, bi []BiallelicCount, multi []MultiallelicCount) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprintf(bufw, "[loci]=%d\n\n", nMarkers)
	fmt.Fprintf(bufw, "[populations]=%d\n\n", nPops)
	pop := 0
	if bi != nil {
		for _, c := range bi {
			if c.PopCode != pop {
				if pop != 0 {
					fmt.Fprintln(bufw)
				}
				pop = c.PopCode
				fmt.Fprintf(bufw, "[pop]=%d\n", pop)
			}
			fmt.Fprintln(bufw, c.line())
		}
	} else {
		for _, c := range multi {
			if c.PopCode != pop {
				if pop != 0 {
					fmt.Fprintln(bufw)
				}
				pop = c.PopCode
				fmt.Fprintf(bufw, "[pop]=%d\n", pop)
			}
			fmt.Fprintln(bufw, c.line())
		}
	}
	if pop != 0 {
		fmt.Fprintln(bufw)
	}
	return bufw.Flush()
}

type bayescancmd struct {
	config Config
}

func (cmd *bayescancmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configFile := flags.String("config", "", "load options from TOML `file` (flags override)")
	inputFilename := flags.String("i", "", "tidy genotype `file` (tsv or tsv.gz)")
	outputFilename := flags.String("o", "", "output `file` (default: snpkit_bayescan_<timestamp>.txt)")
	popSelect := flags.String("pop-select", "", "comma-separated `populations` to keep (default: all)")
	snpLD := flags.Int("snp-ld", 0, "linkage-pruning distance `threshold`, passed through to ingestion")
	maxGoroutines := flags.Int("max-goroutines", defaultConfig().MaxGoroutines, "maximum `concurrency` for dosage recoding")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
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
	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	cmd.config = defaultConfig()
	if *configFile != "" {
		if err = cmd.config.loadFile(*configFile); err != nil {
			return 2
		}
	}
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cmd.config.Input = *inputFilename
		case "o":
			cmd.config.Output = *outputFilename
		case "pop-select":
			cmd.config.PopSelect = splitCommaList(*popSelect)
		case "snp-ld":
			cmd.config.SNPLD = *snpLD
		case "max-goroutines":
			cmd.config.MaxGoroutines = *maxGoroutines
		}
	})
	if err = cmd.config.validate(); err != nil {
		return 2
	}

	ds, err := LoadTidy(cmd.config.Input)
	if err != nil {
		return 1
	}
	result, err := WriteBayescan(ds, cmd.config)
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, result.Path)
	return 0
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
