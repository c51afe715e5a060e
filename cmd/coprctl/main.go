// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// coprctl reads the COPR block of a panel described in a YAML file.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/d2xx"
	"periph.io/x/panel/v3"
	"periph.io/x/panel/v3/copr"
	"periph.io/x/panel/v3/copr/coprsmoketest"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(w io.Writer) *cobra.Command {
	var cfgPath string
	var verbose bool
	root := &cobra.Command{
		Use:   "coprctl",
		Short: "Read the COPR block of a panel",
		Long: `coprctl programs and reads back the COPR (color on pixel ratio) block of
a display driver IC wired to a SPI port, as described by a YAML file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				log.SetOutput(io.Discard)
			}
			log.SetFlags(log.Lmicroseconds)
		},
	}
	root.SetOut(w)
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "panel.yaml", "panel description")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose mode")

	// withDev opens the panel for the duration of fn.
	withDev := func(fn func(d *copr.Dev) error) error {
		c, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		s, err := open(c)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(s.d)
	}

	root.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Enable COPR and take one measurement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDev(func(d *copr.Dev) error {
				if err := d.Enable(); err != nil {
					return err
				}
				if err := d.Update(); err != nil {
					return err
				}
				fmt.Fprintf(w, "%+v\n", d.Props())
				return nil
			})
		},
	})

	var count int
	var interval time.Duration
	avg := &cobra.Command{
		Use:   "avg",
		Short: "Print the time weighted average periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDev(func(d *copr.Dev) error {
				if err := d.Enable(); err != nil {
					return err
				}
				return printAverages(w, d, count, interval)
			})
		},
	}
	avg.Flags().IntVarP(&count, "count", "n", 10, "number of averages to print")
	avg.Flags().DurationVarP(&interval, "interval", "i", time.Second, "averaging window")
	root.AddCommand(avg)

	root.AddCommand(&cobra.Command{
		Use:   "roi xs,ys,xe,ye...",
		Short: "Measure regions of interest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rois, err := parseROIs(args)
			if err != nil {
				return err
			}
			return withDev(func(d *copr.Dev) error {
				if err := d.Enable(); err != nil {
					return err
				}
				out, err := d.ROIValue(rois)
				if err != nil {
					return err
				}
				for i := range out {
					fmt.Fprintf(w, "%s: %v\n", args[i], out[i])
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the register image and its payload without touching the bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			opts, err := c.opts()
			if err != nil {
				return err
			}
			return dump(w, opts.Reg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "ports",
		Short: "List the SPI ports, GPIO pins and FTDI driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := panel.Init(); err != nil {
				return err
			}
			return ports(w)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:                "smoketest",
		Short:              "Run the COPR smoke test, see smoketest -help",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := panel.Init(); err != nil {
				return err
			}
			t := &coprsmoketest.SmokeTest{}
			f := flag.NewFlagSet(t.Name(), flag.ContinueOnError)
			f.SetOutput(cmd.ErrOrStderr())
			return t.Run(f, args)
		},
	})
	return root
}

func printAverages(w io.Writer, d *copr.Dev, count int, interval time.Duration) error {
	// Restart the window so the first average only covers interval.
	if _, err := d.GetAverageAndClear(); err != nil {
		return err
	}
	// Sampled every frame until the panel is closed, unless clear_count is
	// set on V2 and later.
	d.UpdateStart(math.MaxInt32)
	for i := 0; i < count; i++ {
		time.Sleep(interval)
		v, err := d.GetAverageAndClear()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\n", v)
	}
	return nil
}

// parseROIs parses "xs,ys,xe,ye" arguments.
func parseROIs(args []string) ([]copr.ROI, error) {
	out := make([]copr.ROI, 0, len(args))
	for _, a := range args {
		f := strings.Split(a, ",")
		if len(f) != 4 {
			return nil, fmt.Errorf("invalid region %q, expected xs,ys,xe,ye", a)
		}
		var v [4]uint32
		for i, s := range f {
			n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid region %q: %w", a, err)
			}
			v[i] = uint32(n)
		}
		out = append(out, copr.ROI{XS: v[0], YS: v[1], XE: v[2], YE: v[3]})
	}
	return out, nil
}

func dump(w io.Writer, r copr.Reg) error {
	for _, f := range copr.Dump(r) {
		fmt.Fprintf(w, "%s%d\n", f.Name, f.Value)
	}
	b, err := copr.Pack(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "payload: % x\n", b)
	return nil
}

func ports(w io.Writer) error {
	fmt.Fprintf(w, "SPI ports:\n")
	for _, p := range spireg.All() {
		fmt.Fprintf(w, "  %s\n", p.Name)
	}
	fmt.Fprintf(w, "GPIO pins:\n")
	for _, p := range gpioreg.All() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if !d2xx.Available {
		fmt.Fprintf(w, "FTDI: d2xx driver not available\n")
		return nil
	}
	major, minor, build := d2xx.Version()
	n, e := d2xx.CreateDeviceInfoList()
	if e != 0 {
		return fmt.Errorf("d2xx: %v", e)
	}
	fmt.Fprintf(w, "FTDI: d2xx %d.%d.%d, %d device(s)\n", major, minor, build, n)
	return nil
}
