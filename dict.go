// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
)

// A Dictionary maps identifiers (population or marker names) to dense
// integer codes 1..K and back. Codes are assigned by sorting the
// distinct values, so the assignment is deterministic for a given
// value set but has no meaning across runs.
type Dictionary struct {
	codes map[string]int
	names []string
}

// NewDictionary builds a dictionary over the distinct values in the
// input, in sorted order.
func NewDictionary(values []string) *Dictionary {
	seen := map[string]bool{}
	var distinct []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	sort.Strings(distinct)
	d := &Dictionary{codes: make(map[string]int, len(distinct)), names: distinct}
	for i, v := range distinct {
		d.codes[v] = i + 1
	}
	return d
}

// Encode returns the code for an identifier, or 0 if it was not in
// the input value set.
func (d *Dictionary) Encode(name string) int { return d.codes[name] }

// Decode returns the original identifier for a code, or "" for an
// out-of-range code.
func (d *Dictionary) Decode(code int) string {
	if code < 1 || code > len(d.names) {
		return ""
	}
	return d.names[code-1]
}

func (d *Dictionary) Len() int { return len(d.names) }

// WriteTSV emits the original↔code table with the given column names.
func (d *Dictionary) WriteTSV(w io.Writer, origCol, codeCol string) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprintf(bufw, "%s\t%s\n", origCol, codeCol)
	for i, name := range d.names {
		fmt.Fprintf(bufw, "%s\t%d\n", name, i+1)
	}
	return bufw.Flush()
}

// popDictionary and markerDictionary build the two dictionaries a
// coded dataset needs.
func popDictionary(ds *TidyDataset) *Dictionary {
	values := make([]string, 0, len(ds.Records))
	for _, rec := range ds.Records {
		values = append(values, rec.Pop)
	}
	return NewDictionary(values)
}

func markerDictionary(ds *TidyDataset) *Dictionary {
	values := make([]string, 0, len(ds.Records))
	for _, rec := range ds.Records {
		values = append(values, rec.Marker)
	}
	return NewDictionary(values)
}

type recodecmd struct{}

func (cmd *recodecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "tidy genotype `file` (tsv or tsv.gz)")
	outputFilename := flags.String("o", "", "output `file` base name (default: snpkit_recode_<timestamp>.tsv)")
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
	pops := popDictionary(ds)
	markers := markerDictionary(ds)

	outPath := *outputFilename
	if outPath == "" {
		outPath = generatedFilename("snpkit_recode", ".tsv")
	}
	outPath, err = uniquePath(outPath)
	if err != nil {
		return 1
	}
	err = writeFileAtomic(outPath, func(w io.Writer) error {
		bufw := bufio.NewWriter(w)
		fmt.Fprintln(bufw, "POP_ID\tPOP_CODE\tMARKERS\tMARKERS_CODE\tINDIVIDUALS\tGT\tGT_BIN")
		for _, rec := range ds.Records {
			gt := rec.GT
			if gt == "" {
				gt = "000000"
			}
			bin := "NA"
			if rec.Dosage >= 0 {
				bin = fmt.Sprintf("%d", rec.Dosage)
			}
			fmt.Fprintf(bufw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
				rec.Pop, pops.Encode(rec.Pop),
				rec.Marker, markers.Encode(rec.Marker),
				rec.Individual, gt, bin)
		}
		return bufw.Flush()
	})
	if err != nil {
		return 1
	}
	err = writeDictionaries(outPath, pops, markers)
	if err != nil {
		return 1
	}
	log.Infof("wrote %s (%d pops, %d markers)", outPath, pops.Len(), markers.Len())
	fmt.Fprintln(stdout, outPath)
	return 0
}

// writeDictionaries writes the two companion dictionary tables next
// to an output file, deriving their names from its base name.
func writeDictionaries(outPath string, pops, markers *Dictionary) error {
	popPath := companionPath(outPath, "_pop_dictionary.tsv")
	err := writeFileAtomic(popPath, func(w io.Writer) error {
		return pops.WriteTSV(w, "POP_ID", "BAYESCAN_POP")
	})
	if err != nil {
		return err
	}
	markerPath := companionPath(outPath, "_markers_dictionary.tsv")
	return writeFileAtomic(markerPath, func(w io.Writer) error {
		return markers.WriteTSV(w, "MARKERS", "BAYESCAN_MARKERS")
	})
}
