// SPDX-License-Identifier: GPL-2.0-or-later

// Command avitool inspects and recodes AVI files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"

	"avikit/pkg/avi"
	"avikit/pkg/config"
	"avikit/pkg/log"
)

const usage = `inspect and recode AVI files
usage:
  avitool [-v] info file.avi
  avitool [-v] [-config avitool.yaml] recode in.avi out.avi`

// ErrUsage invalid arguments.
var ErrUsage = errors.New("invalid arguments")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		stdlog.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("avitool", flag.ContinueOnError)
	configPath := flags.String("config", "", "encoder configuration")
	verbose := flags.Bool("v", false, "print logs")
	if err := flags.Parse(args); err != nil {
		return err
	}
	args = flags.Args()

	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	logger, err := newLogger(ctx, &wg, cfg, *verbose)
	if err != nil {
		return err
	}

	switch {
	case args[0] == "info" && len(args) == 2:
		return info(out, args[1], logger)
	case args[0] == "recode" && len(args) == 3:
		n, err := recode(args[1], args[2], cfg, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d frames to %v\n", n, args[2])
		return nil
	}
	fmt.Fprintln(out, usage)
	return fmt.Errorf("%w: %v", ErrUsage, args)
}

func newLogger(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, verbose bool) (*log.Logger, error) {
	if !verbose && cfg.LogDB == "" {
		return nil, nil
	}

	logger := log.NewLogger(wg)
	logger.Start(ctx)

	if verbose {
		go logger.LogToStdout(ctx)
	}
	if cfg.LogDB != "" {
		logDB := log.NewDB(cfg.LogDB, wg)
		if err := logDB.Init(ctx); err != nil {
			return nil, fmt.Errorf("init log database: %w", err)
		}
		go logDB.SaveLogs(ctx, logger)
	}
	return logger, nil
}

func info(out io.Writer, path string, logger *log.Logger) error {
	m, err := avi.Open(path, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	h := m.Header()
	fps, _ := m.Option(avi.OptionFrameRate)
	fmt.Fprintf(out, "frames: %d\n", h.TotalFrames)
	fmt.Fprintf(out, "size: %dx%d\n", h.Width, h.Height)
	fmt.Fprintf(out, "frame rate: %.3f\n", fps)
	fmt.Fprintf(out, "streams: %d\n", h.Streams)

	for i, s := range m.Streams() {
		fmt.Fprintf(out, "stream %d: type=%q handler=%q format=%v length=%d indexed=%d",
			i, s.Header.Type, s.Header.Handler, s.Format, s.Header.Length, m.FrameCount(i))
		if s.Bitmap != nil {
			fmt.Fprintf(out, " bitmap=%dx%dx%d", s.Bitmap.Width, s.Bitmap.Height, s.Bitmap.BitCount)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "index: %d entries\n", len(m.Index()))
	return nil
}
