// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/check.v1"
)

type dictSuite struct{}

var _ = check.Suite(&dictSuite{})

func (s *dictSuite) TestRoundTrip(c *check.C) {
	values := []string{"popC", "popA", "popB", "popA", "popC"}
	d := NewDictionary(values)
	c.Check(d.Len(), check.Equals, 3)
	seen := map[int]bool{}
	for _, v := range values {
		code := d.Encode(v)
		c.Check(code > 0, check.Equals, true)
		c.Check(d.Decode(code), check.Equals, v)
		seen[code] = true
	}
	// injective: three distinct values, three distinct codes
	c.Check(seen, check.HasLen, 3)
	// dense 1..K in sort order
	c.Check(d.Encode("popA"), check.Equals, 1)
	c.Check(d.Encode("popB"), check.Equals, 2)
	c.Check(d.Encode("popC"), check.Equals, 3)
	c.Check(d.Encode("nonesuch"), check.Equals, 0)
	c.Check(d.Decode(0), check.Equals, "")
	c.Check(d.Decode(4), check.Equals, "")
}

func (s *dictSuite) TestWriteTSV(c *check.C) {
	d := NewDictionary([]string{"popB", "popA"})
	var buf bytes.Buffer
	err := d.WriteTSV(&buf, "POP_ID", "BAYESCAN_POP")
	c.Assert(err, check.IsNil)
	c.Check(buf.String(), check.Equals, "POP_ID\tBAYESCAN_POP\npopA\t1\npopB\t2\n")
}

func (s *dictSuite) TestRecodeCommand(c *check.C) {
	tmpdir := c.MkDir()
	input := filepath.Join(tmpdir, "tidy.tsv")
	c.Assert(os.WriteFile(input, []byte(`MARKERS	INDIVIDUALS	POP_ID	GT
m2	ind1	popB	001002
m1	ind1	popB	001001
m1	ind2	popA	000000
`), 0644), check.IsNil)
	outfile := filepath.Join(tmpdir, "coded.tsv")

	var stdout bytes.Buffer
	exited := (&recodecmd{}).RunCommand("recode", []string{"-i", input, "-o", outfile}, &bytes.Buffer{}, &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, outfile+"\n")

	coded, err := os.ReadFile(outfile)
	c.Assert(err, check.IsNil)
	lines := strings.Split(string(coded), "\n")
	c.Check(lines[0], check.Equals, "POP_ID\tPOP_CODE\tMARKERS\tMARKERS_CODE\tINDIVIDUALS\tGT\tGT_BIN")
	c.Check(lines[1], check.Equals, "popB\t2\tm2\t2\tind1\t001002\tNA")
	// missing sentinel round-trips
	c.Check(lines[3], check.Equals, "popA\t1\tm1\t1\tind2\t000000\tNA")

	popDict, err := os.ReadFile(filepath.Join(tmpdir, "coded_pop_dictionary.tsv"))
	c.Assert(err, check.IsNil)
	c.Check(string(popDict), check.Equals, "POP_ID\tBAYESCAN_POP\npopA\t1\npopB\t2\n")
	markerDict, err := os.ReadFile(filepath.Join(tmpdir, "coded_markers_dictionary.tsv"))
	c.Assert(err, check.IsNil)
	c.Check(string(markerDict), check.Equals, "MARKERS\tBAYESCAN_MARKERS\nm1\t1\nm2\t2\n")
}
