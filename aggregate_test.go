// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"gopkg.in/check.v1"
)

type aggregateSuite struct{}

var _ = check.Suite(&aggregateSuite{})

const biallelicFixture = `MARKERS	INDIVIDUALS	POP_ID	GT_BIN
m1	a1	popA	0
m1	a2	popA	1
m1	a3	popA	2
m1	b1	popB	0
m1	b2	popB	0
m2	a1	popA	1
m2	a2	popA	1
m2	a3	popA	NA
m2	b1	popB	2
m2	b2	popB	1
m3	a1	popA	0
m3	a2	popA	2
m3	a3	popA	2
m3	b1	popB	NA
m3	b2	popB	1
`

func (s *aggregateSuite) TestBiallelicCounts(c *check.C) {
	ds := mustReadTidy(c, biallelicFixture)
	pops := popDictionary(ds)
	markers := markerDictionary(ds)
	counts := AggregateBiallelic(ds, pops, markers)
	c.Assert(counts, check.HasLen, 6)

	// dosages [0,1,2] -> ref=1×2+1=3, alt=1×2+1=3, gene_n=6
	c.Check(counts[0], check.DeepEquals, BiallelicCount{MarkerCode: 1, PopCode: 1, GeneN: 6, Ref: 3, Alt: 3})
	c.Check(counts[0].line(), check.Equals, "1  6  2  3  3")
	c.Check(counts[3], check.DeepEquals, BiallelicCount{MarkerCode: 1, PopCode: 2, GeneN: 4, Ref: 4, Alt: 0})

	// count conservation: per marker, Σ_pop(ref+alt) == 2 × non-missing genotypes
	nonMissing := map[int]int{}
	for _, rec := range ds.Records {
		if rec.Dosage >= 0 {
			nonMissing[markers.Encode(rec.Marker)]++
		}
	}
	total := map[int]int{}
	for _, cnt := range counts {
		c.Check(cnt.GeneN, check.Equals, cnt.Ref+cnt.Alt)
		total[cnt.MarkerCode] += cnt.GeneN
	}
	for code, n := range nonMissing {
		c.Check(total[code], check.Equals, 2*n)
	}
}

func (s *aggregateSuite) TestBiallelicZeroFill(c *check.C) {
	// popB has no data at m2: the row must still appear, all zero
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT_BIN
m1	a1	popA	1
m1	b1	popB	0
m2	a1	popA	2
`)
	counts := AggregateBiallelic(ds, popDictionary(ds), markerDictionary(ds))
	c.Assert(counts, check.HasLen, 4)
	c.Check(counts[3], check.DeepEquals, BiallelicCount{MarkerCode: 2, PopCode: 2})
	c.Check(counts[3].line(), check.Equals, "2  0  2  0  0")
}

func (s *aggregateSuite) TestMultiallelicCounts(c *check.C) {
	// m1 has three global alleles; popB never observes 003
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	a1	popA	001002
m1	a2	popA	001003
m1	b1	popB	001001
m1	b2	popB	001002
`)
	counts := AggregateMultiallelic(ds, popDictionary(ds), markerDictionary(ds))
	c.Assert(counts, check.HasLen, 2)
	c.Check(counts[0], check.DeepEquals, MultiallelicCount{
		MarkerCode: 1, PopCode: 1, GeneN: 4, NAlleles: 3, Counts: []int{2, 1, 1}})
	c.Check(counts[1], check.DeepEquals, MultiallelicCount{
		MarkerCode: 1, PopCode: 2, GeneN: 4, NAlleles: 3, Counts: []int{3, 1, 0}})
	c.Check(counts[0].line(), check.Equals, "1 4 3 2 1 1")
	c.Check(counts[1].line(), check.Equals, "1 4 3 3 1 0")
}

func (s *aggregateSuite) TestMultiallelicCompleteness(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	a1	popA	001002
m1	a2	popA	002003
m2	a1	popA	004005
m1	b1	popB	001001
`)
	counts := AggregateMultiallelic(ds, popDictionary(ds), markerDictionary(ds))
	// every marker×population pair present, count vector length ==
	// global allele count for that marker
	c.Assert(counts, check.HasLen, 4)
	for _, cnt := range counts {
		if cnt.MarkerCode == 1 {
			c.Check(cnt.Counts, check.HasLen, 3)
		} else {
			c.Check(cnt.Counts, check.HasLen, 2)
		}
		sum := 0
		for _, n := range cnt.Counts {
			sum += n
		}
		c.Check(cnt.GeneN, check.Equals, sum)
	}
	// popB never saw m2 at all
	c.Check(counts[3], check.DeepEquals, MultiallelicCount{
		MarkerCode: 2, PopCode: 2, GeneN: 0, NAlleles: 2, Counts: []int{0, 0}})
}

func (s *aggregateSuite) TestRecodeDosage(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	a1	popA	001001
m1	a2	popA	001002
m1	b1	popB	002002
m1	b2	popB	000000
m2	a1	popA	004004
m2	a2	popA	003004
m2	b1	popB	004004
m2	b2	popB	004004
`)
	err := recodeDosage(ds, 2)
	c.Assert(err, check.IsNil)
	got := map[string]int8{}
	for _, rec := range ds.Records {
		got[rec.Marker+"/"+rec.Individual] = rec.Dosage
	}
	// m1: 001 and 002 tie at 3 observations; 001 wins by sort order
	c.Check(got["m1/a1"], check.Equals, int8(0))
	c.Check(got["m1/a2"], check.Equals, int8(1))
	c.Check(got["m1/b1"], check.Equals, int8(2))
	c.Check(got["m1/b2"], check.Equals, int8(-1))
	// m2: 004 is the majority allele
	c.Check(got["m2/a1"], check.Equals, int8(0))
	c.Check(got["m2/a2"], check.Equals, int8(1))
	c.Check(got["m2/b1"], check.Equals, int8(0))
}

func (s *aggregateSuite) TestRecodeDosageRejectsMultiallelic(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	a1	popA	001002
m1	a2	popA	003003
`)
	err := recodeDosage(ds, 1)
	c.Check(err, check.ErrorMatches, `marker m1 has 3 alleles, cannot recode to biallelic dosage`)
}
