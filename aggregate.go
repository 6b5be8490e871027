// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// BiallelicCount is the aggregated allele count for one marker in one
// population: reference and alternate allele tallies over all
// individuals with a non-missing dosage.
type BiallelicCount struct {
	MarkerCode int
	PopCode    int
	GeneN      int
	Ref        int
	Alt        int
}

// MultiallelicCount is the aggregated per-allele tally for one marker
// in one population. Counts is ordered by the marker's global allele
// set (sorted allele codes, identical for every population), so
// position i always refers to the same allele.
type MultiallelicCount struct {
	MarkerCode int
	PopCode    int
	GeneN      int
	NAlleles   int
	Counts     []int
}

// recodeDosage fills in Dosage for a biallelic dataset whose GT_BIN
// column is absent, from the 6-character genotype codes. The
// reference allele per marker is the globally most frequent one (ties
// broken by code sort order). Markers are processed in parallel,
// bounded by maxGoroutines.
func recodeDosage(ds *TidyDataset, maxGoroutines int) error {
	if maxGoroutines < 1 {
		maxGoroutines = 1
	}
	byMarker := map[string][]int{}
	for i, rec := range ds.Records {
		byMarker[rec.Marker] = append(byMarker[rec.Marker], i)
	}
	var workers throttle
	workers.Max = maxGoroutines
	for marker, idxs := range byMarker {
		marker, idxs := marker, idxs
		workers.Acquire()
		go func() {
			defer workers.Release()
			tally := map[string]int{}
			for _, i := range idxs {
				if a1, a2, ok := ds.Records[i].alleles(); ok {
					tally[a1]++
					tally[a2]++
				}
			}
			if len(tally) > 2 {
				workers.Report(fmt.Errorf("marker %s has %d alleles, cannot recode to biallelic dosage", marker, len(tally)))
				return
			}
			var alleles []string
			for a := range tally {
				alleles = append(alleles, a)
			}
			sort.Strings(alleles)
			ref := ""
			for _, a := range alleles {
				if ref == "" || tally[a] > tally[ref] {
					ref = a
				}
			}
			for _, i := range idxs {
				rec := &ds.Records[i]
				if rec.Dosage >= 0 {
					continue
				}
				if a1, a2, ok := rec.alleles(); ok {
					var d int8
					if a1 != ref {
						d++
					}
					if a2 != ref {
						d++
					}
					rec.Dosage = d
				}
			}
		}()
	}
	return workers.Wait()
}

// AggregateBiallelic reduces dosage-coded records to per-marker,
// per-population ref/alt counts. Every marker×population pair appears
// in the output, zero-filled when a population has no data for a
// marker, ordered by population code then marker code.
func AggregateBiallelic(ds *TidyDataset, pops, markers *Dictionary) []BiallelicCount {
	type key struct{ marker, pop int }
	acc := map[key]*BiallelicCount{}
	// complete cross join first, so all-zero rows survive
	for p := 1; p <= pops.Len(); p++ {
		for m := 1; m <= markers.Len(); m++ {
			acc[key{m, p}] = &BiallelicCount{MarkerCode: m, PopCode: p}
		}
	}
	for _, rec := range ds.Records {
		if rec.Dosage < 0 {
			continue
		}
		c := acc[key{markers.Encode(rec.Marker), pops.Encode(rec.Pop)}]
		switch rec.Dosage {
		case 0:
			c.Ref += 2
		case 1:
			c.Ref++
			c.Alt++
		case 2:
			c.Alt += 2
		}
	}
	out := make([]BiallelicCount, 0, len(acc))
	for _, c := range acc {
		c.GeneN = c.Ref + c.Alt
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PopCode != out[j].PopCode {
			return out[i].PopCode < out[j].PopCode
		}
		return out[i].MarkerCode < out[j].MarkerCode
	})
	return out
}

// globalAlleles returns each marker's distinct allele codes across
// the whole dataset, sorted. This ordering is shared by every
// population's count vector.
func globalAlleles(ds *TidyDataset) map[string][]string {
	sets := map[string]map[string]bool{}
	for _, rec := range ds.Records {
		a1, a2, ok := rec.alleles()
		if !ok {
			continue
		}
		set := sets[rec.Marker]
		if set == nil {
			set = map[string]bool{}
			sets[rec.Marker] = set
		}
		set[a1] = true
		set[a2] = true
	}
	out := map[string][]string{}
	for marker, set := range sets {
		alleles := make([]string, 0, len(set))
		for a := range set {
			alleles = append(alleles, a)
		}
		sort.Strings(alleles)
		out[marker] = alleles
	}
	return out
}

// AggregateMultiallelic reduces genotype records to per-marker,
// per-population allele tally vectors over each marker's global
// allele set. Every marker×population pair appears, zero-filled where
// a population has no observations, ordered by population code then
// marker code.
func AggregateMultiallelic(ds *TidyDataset, pops, markers *Dictionary) []MultiallelicCount {
	alleleSets := globalAlleles(ds)
	type key struct{ marker, pop int }
	acc := map[key]*MultiallelicCount{}
	for p := 1; p <= pops.Len(); p++ {
		for m := 1; m <= markers.Len(); m++ {
			k := len(alleleSets[markers.Decode(m)])
			acc[key{m, p}] = &MultiallelicCount{
				MarkerCode: m,
				PopCode:    p,
				NAlleles:   k,
				Counts:     make([]int, k),
			}
		}
	}
	for _, rec := range ds.Records {
		a1, a2, ok := rec.alleles()
		if !ok {
			continue
		}
		c := acc[key{markers.Encode(rec.Marker), pops.Encode(rec.Pop)}]
		alleles := alleleSets[rec.Marker]
		for _, a := range []string{a1, a2} {
			i := sort.SearchStrings(alleles, a)
			c.Counts[i]++
		}
	}
	out := make([]MultiallelicCount, 0, len(acc))
	for _, c := range acc {
		for _, n := range c.Counts {
			c.GeneN += n
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PopCode != out[j].PopCode {
			return out[i].PopCode < out[j].PopCode
		}
		return out[i].MarkerCode < out[j].MarkerCode
	})
	return out
}

func (c BiallelicCount) line() string {
	return fmt.Sprintf("%d  %d  %d  %d  %d", c.MarkerCode, c.GeneN, 2, c.Ref, c.Alt)
}

func (c MultiallelicCount) line() string {
	fields := make([]string, 0, 3+len(c.Counts))
	fields = append(fields,
		fmt.Sprintf("%d", c.MarkerCode),
		fmt.Sprintf("%d", c.GeneN),
		fmt.Sprintf("%d", c.NAlleles))
	for _, n := range c.Counts {
		fields = append(fields, fmt.Sprintf("%d", n))
	}
	return strings.Join(fields, " ")
}

// logCountSummary reports the aggregate shape, useful when diagnosing
// column-count mismatches in downstream parsers.
func logCountSummary(biallelic bool, nMarkers, nPops int) {
	kind := "multiallelic"
	if biallelic {
		kind = "biallelic"
	}
	log.Infof("aggregated %s counts: %d markers × %d populations", kind, nMarkers, nPops)
}
