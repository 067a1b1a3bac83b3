// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// bio-bedpipe runs bedtools operations on interval files, with the temp-file
// bookkeeping of the pipeline package.
package main

import "github.com/grailbio/bedpipe/cmd/bio-bedpipe/cmd"

func main() {
	cmd.Run()
}
