// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import "errors"

var (
	// ErrMissingInput: no dataset was supplied at all. Raised before
	// any processing or file creation.
	ErrMissingInput = errors.New("missing input data")

	// ErrInvalidConfig: mutually dependent options were supplied
	// inconsistently (e.g. -pop-labels without -pop-levels). Raised
	// before ingestion.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyResult: filtering left zero markers or zero individuals.
	// Distinct from missing input: the caller supplied data, but the
	// requested selection matches none of it.
	ErrEmptyResult = errors.New("empty result after filtering")
)
