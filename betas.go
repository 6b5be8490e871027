// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// PopBeta is the per-population differentiation coefficient, averaged
// over all markers where both HW and HB are defined.
type PopBeta struct {
	Pop  string
	Beta float64
}

// MarkerPopHW is the finite-sample-corrected within-population
// expected heterozygosity of one marker in one population. NaN when
// the population has one or zero allele observations there.
type MarkerPopHW struct {
	Marker string
	Pop    string
	HW     float64
}

// MarkerHB is the between-population gene diversity of one marker.
// NaN when fewer than two populations have data.
type MarkerHB struct {
	Marker string
	HB     float64
}

// BetasResult holds the estimator's three tables, keyed for joining.
type BetasResult struct {
	Betas []PopBeta
	HW    []MarkerPopHW
	HB    []MarkerHB
}

// An alleleExtractor pulls the two allele class labels out of one
// genotype record. The two adapters (6-character GT codes, VCF-style
// "0/1" strings) feed the same statistics core and must yield
// identical HW/HB values on equivalent data.
type alleleExtractor func(TidyRecord) (string, string, bool)

func gtAlleles(rec TidyRecord) (string, string, bool) {
	return rec.alleles()
}

func vcfAlleles(rec TidyRecord) (string, string, bool) {
	if rec.GTVCF == "" {
		return "", "", false
	}
	halves := strings.SplitN(rec.GTVCF, "/", 2)
	if len(halves) != 2 || halves[0] == "." || halves[1] == "." {
		return "", "", false
	}
	return halves[0], halves[1], true
}

// chooseExtractor prefers the 6-character GT column and falls back to
// GT_VCF.
func chooseExtractor(ds *TidyDataset) (alleleExtractor, error) {
	for _, rec := range ds.Records {
		if rec.GT != "" {
			return gtAlleles, nil
		}
	}
	if ds.HasGTVCF {
		return vcfAlleles, nil
	}
	return nil, fmt.Errorf("%w: dataset has neither GT nor GT_VCF genotypes", ErrMissingInput)
}

// EstimateBetas computes per-marker×population HW, per-marker HB, and
// per-population BETAI over a filtered tidy dataset.
//
// HW = (NN/(NN−1))·(1−Σp²) over a population's allele frequencies at
// one marker, NN = allele observations (2× genotypes). HB uses all
// unordered pairs of populations with data:
// 1 − 2·Σ_allele Σ_{i<j} p_i·p_j / (NPOP·(NPOP−1)). BETAI_pop =
// 1 − ΣHW/ΣHB, summing only markers where both terms are defined.
func EstimateBetas(ds *TidyDataset, extract alleleExtractor) (*BetasResult, error) {
	if ds == nil || len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: no tidy dataset", ErrMissingInput)
	}
	// tallies[marker][pop][allele] = observations
	tallies := map[string]map[string]map[string]int{}
	for _, rec := range ds.Records {
		a1, a2, ok := extract(rec)
		if !ok {
			continue
		}
		byPop := tallies[rec.Marker]
		if byPop == nil {
			byPop = map[string]map[string]int{}
			tallies[rec.Marker] = byPop
		}
		tally := byPop[rec.Pop]
		if tally == nil {
			tally = map[string]int{}
			byPop[rec.Pop] = tally
		}
		tally[a1]++
		tally[a2]++
	}
	if len(tallies) == 0 {
		return nil, fmt.Errorf("%w: no scorable genotypes", ErrEmptyResult)
	}

	markers := make([]string, 0, len(tallies))
	for m := range tallies {
		markers = append(markers, m)
	}
	sort.Strings(markers)
	pops := ds.pops()

	result := &BetasResult{}
	hw := map[string]map[string]float64{} // marker -> pop -> HW
	hb := map[string]float64{}            // marker -> HB
	for _, marker := range markers {
		byPop := tallies[marker]
		hw[marker] = map[string]float64{}
		// allele classes observed at this marker, fixed ordering
		classSet := map[string]bool{}
		for _, tally := range byPop {
			for a := range tally {
				classSet[a] = true
			}
		}
		classes := make([]string, 0, len(classSet))
		for a := range classSet {
			classes = append(classes, a)
		}
		sort.Strings(classes)

		var freqs [][]float64 // per contributing pop, per class
		for _, pop := range pops {
			tally := byPop[pop]
			nn := 0
			for _, n := range tally {
				nn += n
			}
			if nn == 0 {
				continue
			}
			if nn <= 1 {
				hw[marker][pop] = math.NaN()
				continue
			}
			sumsq := 0.0
			freq := make([]float64, len(classes))
			for i, class := range classes {
				p := float64(tally[class]) / float64(nn)
				freq[i] = p
				sumsq += p * p
			}
			hw[marker][pop] = float64(nn) / float64(nn-1) * (1 - sumsq)
			freqs = append(freqs, freq)
		}

		npop := len(freqs)
		if npop <= 1 {
			hb[marker] = math.NaN()
		} else {
			raw := 0.0
			for c := range classes {
				for i := 0; i < npop; i++ {
					for j := i + 1; j < npop; j++ {
						raw += freqs[i][c] * freqs[j][c]
					}
				}
			}
			hb[marker] = 1 - 2*raw/float64(npop*(npop-1))
		}
		result.HB = append(result.HB, MarkerHB{Marker: marker, HB: hb[marker]})
		for _, pop := range pops {
			if v, ok := hw[marker][pop]; ok {
				result.HW = append(result.HW, MarkerPopHW{Marker: marker, Pop: pop, HW: v})
			}
		}
	}

	for _, pop := range pops {
		var sumHW, sumHB float64
		n := 0
		for _, marker := range markers {
			v, ok := hw[marker][pop]
			if !ok || math.IsNaN(v) || math.IsNaN(hb[marker]) {
				continue
			}
			sumHW += v
			sumHB += hb[marker]
			n++
		}
		beta := math.NaN()
		if n > 0 && sumHB != 0 {
			beta = 1 - sumHW/sumHB
		}
		result.Betas = append(result.Betas, PopBeta{Pop: pop, Beta: beta})
	}
	return result, nil
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// WriteBetas runs the estimator over a filtered dataset and writes
// the three tables as TSVs sharing a base name.
func WriteBetas(ds *TidyDataset, cfg Config) (*BetasResult, error) {
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
	extract, err := chooseExtractor(ds)
	if err != nil {
		return nil, err
	}
	result, err := EstimateBetas(ds, extract)
	if err != nil {
		return nil, err
	}

	base := cfg.Output
	if base == "" {
		base = generatedFilename("snpkit_betas", "")
	} else {
		base = strings.TrimSuffix(base, ".tsv")
	}
	write := func(suffix string, emit func(*bufio.Writer)) error {
		path, err := uniquePath(base + suffix)
		if err != nil {
			return err
		}
		err = writeFileAtomic(path, func(w io.Writer) error {
			bufw := bufio.NewWriter(w)
			emit(bufw)
			return bufw.Flush()
		})
		if err == nil {
			log.Infof("wrote %s", path)
		}
		return err
	}
	err = write("_betas.tsv", func(w *bufio.Writer) {
		fmt.Fprintln(w, "POP_ID\tBETAI")
		for _, b := range result.Betas {
			fmt.Fprintf(w, "%s\t%s\n", b.Pop, formatStat(b.Beta))
		}
	})
	if err != nil {
		return nil, err
	}
	err = write("_hw.tsv", func(w *bufio.Writer) {
		fmt.Fprintln(w, "MARKERS\tPOP_ID\tHW")
		for _, h := range result.HW {
			fmt.Fprintf(w, "%s\t%s\t%s\n", h.Marker, h.Pop, formatStat(h.HW))
		}
	})
	if err != nil {
		return nil, err
	}
	err = write("_hb.tsv", func(w *bufio.Writer) {
		fmt.Fprintln(w, "MARKERS\tHB")
		for _, h := range result.HB {
			fmt.Fprintf(w, "%s\t%s\n", h.Marker, formatStat(h.HB))
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type betascmd struct {
	config Config
}

func (cmd *betascmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputBase := flags.String("o", "", "output base `name` (default: snpkit_betas_<timestamp>)")
	popSelect := flags.String("pop-select", "", "comma-separated `populations` to keep (default: all)")
	popLevels := flags.String("pop-levels", "", "comma-separated source `labels` to rename (with -pop-labels)")
	popLabels := flags.String("pop-labels", "", "comma-separated new `labels` (with -pop-levels)")
	keepMonomorphic := flags.Bool("keep-monomorphic", false, "keep monomorphic markers")
	commonMarkers := flags.Bool("common-markers", true, "keep only markers genotyped in every population")
	blacklistInd := flags.String("blacklist-ind", "", "`file` listing individuals to drop, one per line")
	whitelistMarkers := flags.String("whitelist-markers", "", "`file` listing markers to keep, one per line")
	maxMarkers := flags.Int("max-markers", 0, "keep at most `N` markers (0 = no cap)")
	snpLD := flags.Int("snp-ld", 0, "linkage-pruning distance `threshold`, passed through to ingestion")
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
			cmd.config.Output = *outputBase
		case "pop-select":
			cmd.config.PopSelect = splitCommaList(*popSelect)
		case "pop-levels":
			cmd.config.PopLevels = splitCommaList(*popLevels)
		case "pop-labels":
			cmd.config.PopLabels = splitCommaList(*popLabels)
		case "keep-monomorphic":
			cmd.config.KeepMonomorphic = *keepMonomorphic
		case "common-markers":
			cmd.config.CommonMarkers = *commonMarkers
		case "blacklist-ind":
			cmd.config.BlacklistInd = *blacklistInd
		case "whitelist-markers":
			cmd.config.WhitelistMarkers = *whitelistMarkers
		case "max-markers":
			cmd.config.MaxMarkers = *maxMarkers
		case "snp-ld":
			cmd.config.SNPLD = *snpLD
		}
	})
	if err = cmd.config.validate(); err != nil {
		return 2
	}

	ds, err := LoadTidy(cmd.config.Input)
	if err != nil {
		return 1
	}
	result, err := WriteBetas(ds, cmd.config)
	if err != nil {
		return 1
	}
	for _, b := range result.Betas {
		fmt.Fprintf(stdout, "%s\t%s\n", b.Pop, formatStat(b.Beta))
	}
	return 0
}
