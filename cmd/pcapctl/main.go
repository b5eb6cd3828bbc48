// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Command pcapctl is a thin inspector for on-disk datasets: list a
// dataset's files, dump its packets, or verify its sidecar index against
// the data files on disk.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/Zoranner/pcapfile-io/dataset"
	"github.com/Zoranner/pcapfile-io/index"
	"github.com/Zoranner/pcapfile-io/layout"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = runInfo(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("pcapctl %s: %s", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pcapctl <info|dump|verify> <dataset-dir> [flags]")
}

func runInfo(args []string) error {
	fs := pflag.NewFlagSet("info", pflag.ExitOnError)
	format := formatFlag(formatText)
	fs.VarP(&format, "format", "f", "output format: "+formatFlagValues())
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir, err := requireDir(fs)
	if err != nil {
		return err
	}

	r, err := dataset.Open(dir, dataset.ReaderConfig{})
	if err != nil {
		return err
	}
	defer r.Close()
	if err := r.Initialize(); err != nil {
		return err
	}

	files, err := r.FileInfoList()
	if err != nil {
		return err
	}
	totalSize, err := r.TotalSize()
	if err != nil {
		return err
	}

	summary := struct {
		TotalPackets uint64             `json:"totalPackets"`
		TotalSize    uint64             `json:"totalSize"`
		Files        []dataset.FileInfo `json:"files"`
	}{
		TotalPackets: r.TotalPackets(),
		TotalSize:    totalSize,
		Files:        files,
	}

	if outputFormat(format) == formatJSON {
		return json.NewEncoder(os.Stdout).Encode(summary)
	}

	fmt.Printf("%d packets, %d bytes across %d file(s)\n", summary.TotalPackets, summary.TotalSize, len(files))
	for _, f := range files {
		fmt.Printf("  %-40s %10d packets  %12d bytes  ts [%d, %d]\n",
			f.Name, f.PacketCount, f.Size, f.FirstTSNs, f.LastTSNs)
	}
	return nil
}

func runDump(args []string) error {
	fs := pflag.NewFlagSet("dump", pflag.ExitOnError)
	count := fs.Int("count", 10, "maximum number of packets to print")
	fromTS := fs.Uint64("from-ts", 0, "capture timestamp (ns since epoch) to start from")
	format := formatFlag(formatText)
	fs.VarP(&format, "format", "f", "output format: "+formatFlagValues())
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir, err := requireDir(fs)
	if err != nil {
		return err
	}

	r, err := dataset.Open(dir, dataset.ReaderConfig{})
	if err != nil {
		return err
	}
	defer r.Close()

	if *fromTS > 0 {
		if _, err := r.SeekToTimestamp(*fromTS); err != nil {
			return err
		}
	}

	packets, err := r.ReadPackets(*count)
	if err != nil {
		return err
	}

	if outputFormat(format) == formatJSON {
		type row struct {
			TSSeconds uint32 `json:"tsSeconds"`
			TSNanos   uint32 `json:"tsNanos"`
			Length    int    `json:"length"`
			Valid     bool   `json:"valid"`
		}
		rows := make([]row, len(packets))
		for i, p := range packets {
			rows[i] = row{p.Packet.TSSeconds, p.Packet.TSNanos, len(p.Packet.Payload), p.IsValid}
		}
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	for _, p := range packets {
		validity := "ok"
		if !p.IsValid {
			validity = "CHECKSUM MISMATCH"
		}
		fmt.Printf("%d.%09d  %6d bytes  %s\n", p.Packet.TSSeconds, p.Packet.TSNanos, len(p.Packet.Payload), validity)
	}
	return nil
}

func runVerify(args []string) error {
	fs := pflag.NewFlagSet("verify", pflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir, err := requireDir(fs)
	if err != nil {
		return err
	}

	if _, err := index.Load(layout.IndexPath(dir, filepath.Base(dir)), dir); err != nil {
		fmt.Printf("FAIL: %s\n", err)
		os.Exit(1)
	}
	if _, err := index.Rebuild(dir); err != nil {
		fmt.Printf("FAIL: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
	return nil
}

func requireDir(fs *pflag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one dataset directory argument, got %d", fs.NArg())
	}
	return fs.Arg(0), nil
}
