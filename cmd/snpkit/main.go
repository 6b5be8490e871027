// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	snpkit "github.com/snpkit/snpkit"
)

func main() {
	snpkit.Main()
}
