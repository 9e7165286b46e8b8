// Package main provides the computegraph CLI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/born-ml/computegraph/internal/graph"
)

const version = "v0.1.0-dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// newApp builds the command tree. Command output goes to out.
func newApp(out io.Writer) *cli.App {
	env := &environment{out: out, log: logrus.New()}

	app := cli.NewApp()
	app.Name = "computegraph"
	app.Usage = "Inspect and run compute graph kernels"
	app.Version = version
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config,c", Usage: "Graph config `FILE` (YAML)"},
		cli.StringFlag{Name: "log-level", Usage: "Log level, overrides the config"},
	}
	app.Before = func(c *cli.Context) error {
		return env.setup(c.GlobalString("config"), c.GlobalString("log-level"))
	}

	traceFlag := cli.StringFlag{Name: "trace,t", Usage: "Write a msgpack dispatch trace to `FILE`"}
	app.Commands = []cli.Command{
		{
			Name:  "kernels",
			Usage: "List registered kernels",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "noTable", Usage: "Render pure text instead of table"},
			},
			Action: func(c *cli.Context) error {
				return env.listKernels(c.Bool("noTable"))
			},
		},
		{
			Name:      "compile",
			Usage:     "Compile kernels to SPIR-V",
			ArgsUsage: "[kernel...]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out,o", Value: ".", Usage: "Output `DIR`"},
			},
			Action: func(c *cli.Context) error {
				return env.compile(c.String("out"), c.Args())
			},
		},
		{
			Name:  "run",
			Usage: "Run a demo graph on the CPU device",
			Subcommands: []cli.Command{
				{
					Name:  "roundtrip",
					Usage: "Pack int8 data into an int8x4 tensor and unpack it again",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "shape,s", Value: "2,3,5", Usage: "Tensor shape"},
						cli.StringFlag{Name: "layout,l", Value: "c", Usage: "Packed dim: w, h or c"},
						traceFlag,
					},
					Action: func(c *cli.Context) error {
						return env.runRoundTrip(c.String("shape"), c.String("layout"), c.String("trace"))
					},
				},
				{
					Name:  "where",
					Usage: "Select between two tensors by a condition",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "self", Value: "2,3", Usage: "Shape of self"},
						cli.StringFlag{Name: "other", Value: "2,3", Usage: "Shape of other"},
						cli.StringFlag{Name: "cond", Value: "2,3", Usage: "Shape of cond"},
						cli.StringFlag{Name: "dtype", Value: "float", Usage: "float or int32"},
						traceFlag,
					},
					Action: func(c *cli.Context) error {
						return env.runWhere(whereArgs{
							self:  c.String("self"),
							other: c.String("other"),
							cond:  c.String("cond"),
							dtype: c.String("dtype"),
							trace: c.String("trace"),
						})
					},
				},
			},
		},
		{
			Name:  "version",
			Usage: "Show version",
			Action: func(c *cli.Context) error {
				_, err := fmt.Fprintf(out, "computegraph %s\n", version)
				return err
			},
		},
	}
	return app
}

// environment carries state shared by all commands.
type environment struct {
	out io.Writer
	log *logrus.Logger
	cfg graph.Config
}

func (e *environment) setup(configPath, level string) error {
	e.cfg = graph.DefaultConfig()
	if configPath != "" {
		cfg, err := graph.LoadConfig(configPath)
		if err != nil {
			return err
		}
		e.cfg = cfg
	}
	if level == "" {
		level = e.cfg.LogLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	e.log.SetLevel(lvl)
	e.log.SetOutput(os.Stderr)
	return nil
}
