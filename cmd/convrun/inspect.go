package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convcore/internal/config"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/ops"
)

func inspectCmd() *cli.Command {
	var format string

	flags := append([]cli.Flag{}, defFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "format",
			Usage:       "print the normalized definition as yaml or json",
			Value:       "yaml",
			Destination: &format,
		},
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print an operator definition, its geometry and selected strategy",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			def, err := config.Load(defPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := def.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			p, err := def.ConvParams()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			act, err := def.ActivationParams()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			f := config.YAML
			if format == "json" {
				f = config.JSON
			}
			data, err := def.Marshal(f)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			fmt.Printf("%s\n", data)
			fmt.Printf("params:     %s\n", p)
			fmt.Printf("activation: %s\n", act)

			in, okIn := def.Shapes[def.Inputs[0]]
			filter, okFilter := def.Shapes[def.Inputs[1]]
			if !okIn || !okFilter {
				return nil
			}
			g, err := conv.Resolve(in, filter, p, def.IsDepthwise())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			device, _ := def.DeviceType()
			dtype, _ := def.DataType()
			impl := ops.DefaultSelector.Select(g.Signature(), ops.Target{Device: device, DType: dtype}, ops.DetectCapabilities())

			fmt.Printf("output:     %v\n", g.OutputShape())
			fmt.Printf("padding:    top=%d left=%d bottom=%d right=%d\n", g.PadTop, g.PadLeft, g.PadBottom, g.PadRight)
			fmt.Printf("signature:  %s\n", g.Signature())
			fmt.Printf("strategy:   %s\n", impl)
			return nil
		},
	}
}
