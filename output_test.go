// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/check.v1"
)

type outputSuite struct{}

var _ = check.Suite(&outputSuite{})

func (s *outputSuite) TestUniquePath(c *check.C) {
	tmpdir := c.MkDir()
	path := filepath.Join(tmpdir, "out.txt")

	got, err := uniquePath(path)
	c.Assert(err, check.IsNil)
	c.Check(got, check.Equals, path)

	c.Assert(os.WriteFile(path, []byte("x"), 0644), check.IsNil)
	got, err = uniquePath(path)
	c.Assert(err, check.IsNil)
	c.Check(got, check.Not(check.Equals), path)
	c.Check(strings.HasSuffix(got, ".txt"), check.Equals, true)
	c.Check(strings.HasPrefix(filepath.Base(got), "out_"), check.Equals, true)

	// collide with the timestamped name too
	c.Assert(os.WriteFile(got, []byte("y"), 0644), check.IsNil)
	again, err := uniquePath(path)
	c.Assert(err, check.IsNil)
	c.Check(again, check.Not(check.Equals), path)
	c.Check(again, check.Not(check.Equals), got)
}

func (s *outputSuite) TestCompanionPath(c *check.C) {
	c.Check(companionPath("/x/out.txt", "_pop_dictionary.tsv"), check.Equals, "/x/out_pop_dictionary.tsv")
	c.Check(companionPath("base", "_hb.tsv"), check.Equals, "base_hb.tsv")
}

func (s *outputSuite) TestWriteFileAtomic(c *check.C) {
	tmpdir := c.MkDir()
	path := filepath.Join(tmpdir, "out.txt")
	err := writeFileAtomic(path, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "content")
		return err
	})
	c.Assert(err, check.IsNil)
	data, err := os.ReadFile(path)
	c.Assert(err, check.IsNil)
	c.Check(string(data), check.Equals, "content\n")

	// a failing writer leaves nothing behind
	path2 := filepath.Join(tmpdir, "fail.txt")
	err = writeFileAtomic(path2, func(w io.Writer) error {
		return errors.New("boom")
	})
	c.Check(err, check.ErrorMatches, `write .*fail.txt: boom`)
	_, err = os.Stat(path2)
	c.Check(os.IsNotExist(err), check.Equals, true)
	entries, err := os.ReadDir(tmpdir)
	c.Assert(err, check.IsNil)
	c.Check(entries, check.HasLen, 1)
}

func (s *outputSuite) TestWriteFileAtomicRefusesClobber(c *check.C) {
	// a file appearing at the target path after the uniquePath check
	// must survive; the link step fails instead of replacing it
	tmpdir := c.MkDir()
	path := filepath.Join(tmpdir, "out.txt")
	c.Assert(os.WriteFile(path, []byte("precious\n"), 0644), check.IsNil)
	err := writeFileAtomic(path, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "usurper")
		return err
	})
	c.Check(os.IsExist(err), check.Equals, true)
	data, err := os.ReadFile(path)
	c.Assert(err, check.IsNil)
	c.Check(string(data), check.Equals, "precious\n")
	entries, err := os.ReadDir(tmpdir)
	c.Assert(err, check.IsNil)
	c.Check(entries, check.HasLen, 1)
}
