// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// outputFormat selects how "info" and "dump" render their results.
type outputFormat int

const (
	formatText outputFormat = iota
	formatJSON
)

var outputFormatName = map[outputFormat]string{
	formatText: "text",
	formatJSON: "json",
}

var outputFormatValue = map[string]outputFormat{
	"text": formatText,
	"json": formatJSON,
}

// formatFlag is a pflag.Value that accepts "text" or "json".
type formatFlag outputFormat

var _ pflag.Value = (*formatFlag)(nil)

func (f *formatFlag) String() string { return outputFormatName[outputFormat(*f)] }

func (f *formatFlag) Set(v string) error {
	of, ok := outputFormatValue[v]
	if !ok {
		return errors.Errorf("unknown format %q (want one of: %s)", v, formatFlagValues())
	}
	*f = formatFlag(of)
	return nil
}

func (f *formatFlag) Type() string { return "format" }

func formatFlagValues() string {
	return strings.Join([]string{"text", "json"}, ", ")
}
