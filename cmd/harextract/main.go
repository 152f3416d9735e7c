// Command harextract pulls survey rows out of a browser HAR capture and
// writes them reprojected to <outputPrefix>.jsonl and <outputPrefix>.csv.
//
//	harextract <input.har> <outputPrefix>
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ff-einsatz/hydrantmap/internal/importer"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/logging"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitMissing = 2
	exitFailed  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) != 2 || args[0] == "" || args[1] == "" {
		fmt.Fprintln(stderr, "usage: harextract <input.har> <outputPrefix>")
		return exitUsage
	}
	input, prefix := args[0], args[1]

	config.LoadDotEnv()
	cfg, err := config.Load("hydrantmap-harextract")
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailed
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, stderr)

	opts := importer.OptionsFromConfig(cfg).Convert
	res, err := importer.ExtractHAR(input, prefix, opts, logger)
	if err != nil {
		if errors.Is(err, importer.ErrInputNotFound) {
			logger.Error("input file not found", "input", input)
			return exitMissing
		}
		logger.Error("extraction failed", "input", input, "error", err)
		return exitFailed
	}

	logger.Info("extraction finished",
		"rows", res.Rows,
		"unique", res.Unique,
		"converted", res.Converted,
		"rejected", res.Rejected,
		"files", res.Files,
	)
	return exitOK
}
