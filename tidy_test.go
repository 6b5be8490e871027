// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"errors"
	"strings"

	"gopkg.in/check.v1"
)

type tidySuite struct{}

var _ = check.Suite(&tidySuite{})

func mustReadTidy(c *check.C, tsv string) *TidyDataset {
	ds, err := ReadTidy(strings.NewReader(tsv))
	c.Assert(err, check.IsNil)
	return ds
}

func (s *tidySuite) TestReadTidy(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT	GT_BIN
m1	ind1	popA	001002	1
m1	ind2	popA	000000	NA
m1	ind3	popB	002002	2
`)
	c.Check(ds.Records, check.HasLen, 3)
	c.Check(ds.HasGTBin, check.Equals, true)
	c.Check(ds.HasGTVCF, check.Equals, false)
	c.Check(ds.Records[0].GT, check.Equals, "001002")
	c.Check(ds.Records[0].Dosage, check.Equals, int8(1))
	// "000000" is the missing sentinel
	c.Check(ds.Records[1].GT, check.Equals, "")
	c.Check(ds.Records[1].Dosage, check.Equals, int8(-1))
	c.Check(ds.Records[1].missing(), check.Equals, true)
}

func (s *tidySuite) TestReadTidyVCFSentinel(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT_VCF
m1	ind1	popA	0/1
m1	ind2	popA	./.
`)
	c.Check(ds.HasGTVCF, check.Equals, true)
	c.Check(ds.Records[0].GTVCF, check.Equals, "0/1")
	c.Check(ds.Records[1].GTVCF, check.Equals, "")
	c.Check(ds.Records[1].missing(), check.Equals, true)
}

func (s *tidySuite) TestReadTidyErrors(c *check.C) {
	_, err := ReadTidy(strings.NewReader(""))
	c.Check(errors.Is(err, ErrMissingInput), check.Equals, true)

	_, err = ReadTidy(strings.NewReader("MARKERS\tINDIVIDUALS\tPOP_ID\n"))
	c.Check(errors.Is(err, ErrMissingInput), check.Equals, true)

	_, err = ReadTidy(strings.NewReader("MARKERS\tINDIVIDUALS\n"))
	c.Check(err, check.ErrorMatches, `tidy table has no POP_ID column`)

	_, err = ReadTidy(strings.NewReader("MARKERS\tINDIVIDUALS\tPOP_ID\tGT\nm1\ti1\tp1\t0102\n"))
	c.Check(err, check.ErrorMatches, `line 2: GT "0102" is not a 6-character code`)
}

func (s *tidySuite) TestCleanNames(c *check.C) {
	c.Check(CleanMarkerName("scaf 1:12,345"), check.Equals, "scaf_1__12_345")
	c.Check(CleanIndName("ind 1_a"), check.Equals, "ind-1-a")
	c.Check(CleanPopName("pop one"), check.Equals, "pop_one")
}

func (s *tidySuite) TestDetectAllMissing(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	ind1	popA	001002
m2	ind1	popA	000000
m2	ind2	popA	000000
`)
	filtered, dropped := DetectAllMissing(ds)
	c.Check(dropped, check.DeepEquals, []string{"m2"})
	c.Check(filtered.markers(), check.DeepEquals, []string{"m1"})
}

func (s *tidySuite) TestDiscardMonomorphic(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	ind1	popA	001001
m1	ind2	popB	001001
m2	ind1	popA	001002
m2	ind2	popB	002002
`)
	filtered, dropped := DiscardMonomorphic(ds)
	c.Check(dropped, check.DeepEquals, []string{"m1"})
	c.Check(filtered.markers(), check.DeepEquals, []string{"m2"})
}

func (s *tidySuite) TestDiscardMonomorphicHalfCalledVCF(c *check.C) {
	// "0/." carries one observable allele; the "." half must not count
	// as an allele class of its own
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT_VCF
m1	ind1	popA	0/0
m1	ind2	popB	0/.
m2	ind1	popA	0/1
m2	ind2	popB	0/0
`)
	filtered, dropped := DiscardMonomorphic(ds)
	c.Check(dropped, check.DeepEquals, []string{"m1"})
	c.Check(filtered.markers(), check.DeepEquals, []string{"m2"})
}

func (s *tidySuite) TestKeepCommonMarkers(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	ind1	popA	001002
m1	ind2	popB	001001
m2	ind1	popA	001002
m2	ind2	popB	000000
`)
	filtered, dropped := KeepCommonMarkers(ds)
	c.Check(dropped, check.DeepEquals, []string{"m2"})
	c.Check(filtered.markers(), check.DeepEquals, []string{"m1"})
}

func (s *tidySuite) TestRelabelPops(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	ind1	popA	001002
m1	ind2	popB	001001
`)
	_, err := RelabelPops(ds, []string{"popA"}, nil)
	c.Check(errors.Is(err, ErrInvalidConfig), check.Equals, true)

	out, err := RelabelPops(ds, []string{"popA", "popB"}, []string{"north", "south"})
	c.Assert(err, check.IsNil)
	c.Check(out.pops(), check.DeepEquals, []string{"north", "south"})
}

func (s *tidySuite) TestSelectAndBlacklist(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m1	ind1	popA	001002
m1	ind2	popB	001001
m1	ind3	popB	002002
`)
	c.Check(SelectPops(ds, []string{"popB"}).Records, check.HasLen, 2)
	c.Check(SelectPops(ds, nil).Records, check.HasLen, 3)
	c.Check(BlacklistIndividuals(ds, []string{"ind2"}).Records, check.HasLen, 2)
	c.Check(WhitelistMarkers(ds, []string{"m9"}).Records, check.HasLen, 0)
}

func (s *tidySuite) TestCapMarkers(c *check.C) {
	ds := mustReadTidy(c, `MARKERS	INDIVIDUALS	POP_ID	GT
m3	ind1	popA	001002
m1	ind1	popA	001002
m2	ind1	popA	001002
`)
	capped := CapMarkers(ds, 2)
	c.Check(capped.markers(), check.DeepEquals, []string{"m1", "m2"})
	c.Check(CapMarkers(ds, 0).markers(), check.HasLen, 3)
}
