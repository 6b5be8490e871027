// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// TidyRecord is one individual×marker genotype observation from a tidy
// dataset. Missing genotypes are normalized at ingest: GT=="" means
// missing (input sentinels "000000" and "./." are both accepted).
type TidyRecord struct {
	Marker     string
	Individual string
	Pop        string
	GT         string // 6-char code, two 3-digit allele halves; "" = missing
	GTVCF      string // "0/1" style; "" = missing
	Dosage     int8   // 0/1/2 alternate-allele count; -1 = missing or not provided
	Alt        string // comma-separated VCF alternate alleles, may be empty
}

func (r TidyRecord) missing() bool {
	return r.GT == "" && r.GTVCF == "" && r.Dosage < 0
}

// alleles returns the two 3-character halves of GT, ok=false when missing.
func (r TidyRecord) alleles() (a1, a2 string, ok bool) {
	if len(r.GT) != 6 {
		return "", "", false
	}
	return r.GT[:3], r.GT[3:], true
}

// TidyDataset is a fully materialized tidy table plus which optional
// columns were present in the source.
type TidyDataset struct {
	Records  []TidyRecord
	HasGTBin bool
	HasGTVCF bool
	HasALT   bool
}

var tidyColumns = map[string]bool{
	"MARKERS": true, "INDIVIDUALS": true, "POP_ID": true,
	"GT": true, "GT_BIN": true, "GT_VCF": true, "GT_VCF_NUC": true, "ALT": true,
}

// ReadTidy parses a tab-separated tidy table with a header row naming
// any subset of the canonical columns. MARKERS, INDIVIDUALS and POP_ID
// are required.
func ReadTidy(rdr io.Reader) (*TidyDataset, error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: empty table", ErrMissingInput)
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	col := map[string]int{}
	for i, name := range header {
		name = strings.ToUpper(strings.TrimSpace(name))
		if tidyColumns[name] {
			col[name] = i
		}
	}
	for _, required := range []string{"MARKERS", "INDIVIDUALS", "POP_ID"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("tidy table has no %s column", required)
		}
	}
	ds := &TidyDataset{}
	_, ds.HasGTBin = col["GT_BIN"]
	_, ds.HasGTVCF = col["GT_VCF"]
	_, ds.HasALT = col["ALT"]
	field := func(fields []string, name string) string {
		if i, ok := col[name]; ok && i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		rec := TidyRecord{
			Marker:     CleanMarkerName(field(fields, "MARKERS")),
			Individual: CleanIndName(field(fields, "INDIVIDUALS")),
			Pop:        CleanPopName(field(fields, "POP_ID")),
			Dosage:     -1,
			Alt:        field(fields, "ALT"),
		}
		if rec.Marker == "" || rec.Individual == "" || rec.Pop == "" {
			return nil, fmt.Errorf("line %d: empty MARKERS, INDIVIDUALS or POP_ID", line)
		}
		switch gt := field(fields, "GT"); gt {
		case "", "000000":
			// missing
		default:
			if len(gt) != 6 {
				return nil, fmt.Errorf("line %d: GT %q is not a 6-character code", line, gt)
			}
			rec.GT = gt
		}
		switch vcf := field(fields, "GT_VCF"); vcf {
		case "", "./.":
			// missing
		default:
			rec.GTVCF = vcf
		}
		switch bin := field(fields, "GT_BIN"); bin {
		case "", "NA", ".":
			// missing
		case "0", "1", "2":
			rec.Dosage = int8(bin[0] - '0')
		default:
			return nil, fmt.Errorf("line %d: GT_BIN %q is not 0, 1, 2 or NA", line, bin)
		}
		ds.Records = append(ds.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: table has a header but no rows", ErrMissingInput)
	}
	return ds, nil
}

// LoadTidy reads a tidy table from a file, gunzipping *.gz.
func LoadTidy(path string) (*TidyDataset, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no input file", ErrMissingInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rdr io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer gz.Close()
		rdr = gz
	}
	ds, err := ReadTidy(rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

var markerNameCleaner = strings.NewReplacer(
	" ", "_", "\t", "_", ":", "__", ",", "_", ";", "_", "/", "_")

var indNameCleaner = strings.NewReplacer(
	" ", "-", "\t", "-", "_", "-", ":", "-", ",", "-", ";", "-", "/", "-")

var popNameCleaner = strings.NewReplacer(
	" ", "_", "\t", "_", ":", "_", ",", "_", ";", "_", "/", "_")

// CleanMarkerName normalizes separator characters in a locus name so
// it survives round trips through whitespace-delimited files.
func CleanMarkerName(name string) string { return markerNameCleaner.Replace(name) }

func CleanIndName(name string) string { return indNameCleaner.Replace(name) }

func CleanPopName(name string) string { return popNameCleaner.Replace(name) }

// markers returns the sorted distinct marker names.
func (ds *TidyDataset) markers() []string {
	return sortedKeys(ds.groupByMarker())
}

func (ds *TidyDataset) pops() []string {
	seen := map[string]bool{}
	var pops []string
	for _, rec := range ds.Records {
		if !seen[rec.Pop] {
			seen[rec.Pop] = true
			pops = append(pops, rec.Pop)
		}
	}
	sort.Strings(pops)
	return pops
}

func (ds *TidyDataset) groupByMarker() map[string][]TidyRecord {
	groups := map[string][]TidyRecord{}
	for _, rec := range ds.Records {
		groups[rec.Marker] = append(groups[rec.Marker], rec)
	}
	return groups
}

func sortedKeys(m map[string][]TidyRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// filtered returns a copy of ds holding only records accepted by keep,
// preserving input order.
func (ds *TidyDataset) filtered(keep func(TidyRecord) bool) *TidyDataset {
	out := &TidyDataset{HasGTBin: ds.HasGTBin, HasGTVCF: ds.HasGTVCF, HasALT: ds.HasALT}
	for _, rec := range ds.Records {
		if keep(rec) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

// DetectAllMissing drops markers whose genotypes are missing in every
// individual. Such markers carry no allele observations and would
// corrupt biallelic detection.
func DetectAllMissing(ds *TidyDataset) (*TidyDataset, []string) {
	hasData := map[string]bool{}
	for _, rec := range ds.Records {
		if !rec.missing() {
			hasData[rec.Marker] = true
		}
	}
	var dropped []string
	for marker := range ds.groupByMarker() {
		if !hasData[marker] {
			dropped = append(dropped, marker)
		}
	}
	sort.Strings(dropped)
	if len(dropped) > 0 {
		log.Infof("dropping %d markers with all genotypes missing", len(dropped))
	}
	return ds.filtered(func(rec TidyRecord) bool { return hasData[rec.Marker] }), dropped
}

// DiscardMonomorphic drops markers with a single observed allele
// across the whole dataset.
func DiscardMonomorphic(ds *TidyDataset) (*TidyDataset, []string) {
	alleles := map[string]map[string]bool{}
	observe := func(marker, allele string) {
		set := alleles[marker]
		if set == nil {
			set = map[string]bool{}
			alleles[marker] = set
		}
		set[allele] = true
	}
	for _, rec := range ds.Records {
		if a1, a2, ok := rec.alleles(); ok {
			observe(rec.Marker, a1)
			observe(rec.Marker, a2)
		} else if rec.GTVCF != "" {
			// half-called genotypes like "0/." still carry one allele
			for _, a := range strings.SplitN(rec.GTVCF, "/", 2) {
				if a != "." {
					observe(rec.Marker, a)
				}
			}
		} else if rec.Dosage >= 0 {
			// dosage 1 carries both alleles
			switch rec.Dosage {
			case 0:
				observe(rec.Marker, "ref")
			case 2:
				observe(rec.Marker, "alt")
			default:
				observe(rec.Marker, "ref")
				observe(rec.Marker, "alt")
			}
		}
	}
	var dropped []string
	for marker, set := range alleles {
		if len(set) < 2 {
			dropped = append(dropped, marker)
		}
	}
	sort.Strings(dropped)
	if len(dropped) > 0 {
		log.Infof("dropping %d monomorphic markers", len(dropped))
	}
	drop := map[string]bool{}
	for _, m := range dropped {
		drop[m] = true
	}
	return ds.filtered(func(rec TidyRecord) bool { return !drop[rec.Marker] }), dropped
}

// KeepCommonMarkers drops markers that are not genotyped (with at
// least one non-missing call) in every population.
func KeepCommonMarkers(ds *TidyDataset) (*TidyDataset, []string) {
	npop := len(ds.pops())
	popsWithData := map[string]map[string]bool{}
	for _, rec := range ds.Records {
		if rec.missing() {
			continue
		}
		set := popsWithData[rec.Marker]
		if set == nil {
			set = map[string]bool{}
			popsWithData[rec.Marker] = set
		}
		set[rec.Pop] = true
	}
	var dropped []string
	for marker := range ds.groupByMarker() {
		if len(popsWithData[marker]) < npop {
			dropped = append(dropped, marker)
		}
	}
	sort.Strings(dropped)
	if len(dropped) > 0 {
		log.Infof("dropping %d markers not genotyped in all %d populations", len(dropped), npop)
	}
	drop := map[string]bool{}
	for _, m := range dropped {
		drop[m] = true
	}
	return ds.filtered(func(rec TidyRecord) bool { return !drop[rec.Marker] }), dropped
}

// SelectPops keeps only records whose POP_ID is in the given set. An
// empty selection keeps everything.
func SelectPops(ds *TidyDataset, pops []string) *TidyDataset {
	if len(pops) == 0 {
		return ds
	}
	keep := map[string]bool{}
	for _, p := range pops {
		keep[CleanPopName(p)] = true
	}
	return ds.filtered(func(rec TidyRecord) bool { return keep[rec.Pop] })
}

// RelabelPops renames population labels: levels[i] becomes labels[i].
// Both lists must be supplied together and have equal length.
func RelabelPops(ds *TidyDataset, levels, labels []string) (*TidyDataset, error) {
	if len(levels) == 0 && len(labels) == 0 {
		return ds, nil
	}
	if len(levels) == 0 || len(labels) == 0 || len(levels) != len(labels) {
		return nil, fmt.Errorf("%w: -pop-levels and -pop-labels must be supplied together, one label per level", ErrInvalidConfig)
	}
	rename := map[string]string{}
	for i, level := range levels {
		rename[CleanPopName(level)] = CleanPopName(labels[i])
	}
	out := &TidyDataset{HasGTBin: ds.HasGTBin, HasGTVCF: ds.HasGTVCF, HasALT: ds.HasALT}
	for _, rec := range ds.Records {
		if to, ok := rename[rec.Pop]; ok {
			rec.Pop = to
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// BlacklistIndividuals drops the listed individuals.
func BlacklistIndividuals(ds *TidyDataset, inds []string) *TidyDataset {
	if len(inds) == 0 {
		return ds
	}
	drop := map[string]bool{}
	for _, ind := range inds {
		drop[CleanIndName(ind)] = true
	}
	return ds.filtered(func(rec TidyRecord) bool { return !drop[rec.Individual] })
}

// WhitelistMarkers keeps only the listed markers. An empty whitelist
// keeps everything.
func WhitelistMarkers(ds *TidyDataset, markers []string) *TidyDataset {
	if len(markers) == 0 {
		return ds
	}
	keep := map[string]bool{}
	for _, m := range markers {
		keep[CleanMarkerName(m)] = true
	}
	return ds.filtered(func(rec TidyRecord) bool { return keep[rec.Marker] })
}

// CapMarkers keeps at most max markers, chosen in sorted marker-name
// order. max <= 0 means no cap.
func CapMarkers(ds *TidyDataset, max int) *TidyDataset {
	markers := ds.markers()
	if max <= 0 || len(markers) <= max {
		return ds
	}
	keep := map[string]bool{}
	for _, m := range markers[:max] {
		keep[m] = true
	}
	log.Infof("capping dataset to %d of %d markers", max, len(markers))
	return ds.filtered(func(rec TidyRecord) bool { return keep[rec.Marker] })
}

// readListFile reads one entry per line, ignoring blanks and #comments.
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}
