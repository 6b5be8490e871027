// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func timestamp() string {
	return time.Now().Format("20060102T150405")
}

func generatedFilename(prefix, ext string) string {
	return prefix + "_" + timestamp() + ext
}

// uniquePath returns path if nothing exists there, otherwise a
// variant with a timestamp (and if needed a counter) inserted before
// the extension. Existing files are never reused.
func uniquePath(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := base + "_" + timestamp() + ext
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s_%s_%d%s", base, timestamp(), n, ext)
	}
}

// companionPath derives a side-output name from an output file name:
// out.txt + "_pop_dictionary.tsv" -> out_pop_dictionary.tsv.
func companionPath(path, suffix string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}

// writeFileAtomic writes via a temporary file in the destination
// directory and links it into place on success, so a failure
// mid-write never leaves a truncated output file. Linking (rather
// than renaming) refuses to replace a file created at the target
// path after the uniquePath check, so the final step cannot clobber.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	// CreateTemp makes mode-0600 files; outputs are not secrets.
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Link(tmp.Name(), path)
}
