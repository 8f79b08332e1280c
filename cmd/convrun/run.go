package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/backend/webgpu"
	"github.com/born-ml/convcore/internal/config"
	"github.com/born-ml/convcore/internal/logger"
	"github.com/born-ml/convcore/internal/ops"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/born-ml/convcore/internal/validation"
)

func runCmd() *cli.Command {
	var (
		runs      int64
		workers   int64
		device    string
		threshold float64
	)

	flags := append([]cli.Flag{}, defFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:        "runs",
			Aliases:     []string{"n"},
			Usage:       "number of timed runs",
			Value:       3,
			Destination: &runs,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "worker count (0 uses CONVCORE_NUM_THREADS or the CPU count)",
			Destination: &workers,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "accelerator for gpu operators (auto, webgpu, host)",
			Value:       "auto",
			Destination: &device,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "minimum cosine similarity against the reference",
			Value:       0.999,
			Destination: &threshold,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run an operator on synthesized tensors and validate it",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()
			ctx = logger.WithContext(ctx, log)

			def, err := config.Load(defPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			o, err := synthesize(def, rand.New(rand.NewSource(seed))) //nolint:gosec // synthetic data
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ws := ops.NewWorkspace()
			if err := stage(ws, def, o); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			pool := parallel.Default()
			if workers > 0 {
				pool = parallel.WithWorkers(int(workers))
			}
			opts := []ops.Option{ops.WithPool(pool), ops.WithLogger(log)}
			if dt, _ := def.DeviceType(); dt == tensor.GPU {
				dev, release, err := openDevice(device, pool, log)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				defer release()
				opts = append(opts, ops.WithDevice(dev))
			}

			op, err := ops.New(def, ws, opts...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("running operator", "op", def.String(), "runs", runs)
			var total time.Duration
			for i := int64(0); i < max(runs, 1); i++ {
				start := time.Now()
				if err := op.Run(ctx, ws); err != nil {
					return cli.Exit(fmt.Sprintf("error: run %d: %v", i, err), 1)
				}
				elapsed := time.Since(start)
				total += elapsed
				log.Debug("run finished", "run", i, "elapsed", elapsed)
			}

			out, _ := ws.Get(def.Output)
			got, err := actual(out)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read output: %v", err), 1)
			}
			want, err := reference(ctx, op, def, o)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: reference: %v", err), 1)
			}
			report := validation.Compare(want, got)

			fmt.Printf("operator:   %s\n", def)
			fmt.Printf("strategy:   %s\n", op.Impl())
			if op.BlockSize() > 0 {
				fmt.Printf("winograd:   %d\n", op.BlockSize())
			}
			fmt.Printf("output:     %v\n", out.Shape())
			fmt.Printf("avg time:   %s\n", total/time.Duration(max(runs, 1)))
			fmt.Printf("validation: %s\n", report)

			if !report.Passed(threshold) {
				return cli.Exit(fmt.Sprintf("validation failed: similarity %.6f < %.6f", report.Similarity, threshold), 2)
			}
			return nil
		},
	}
}

// openDevice returns the accelerator named by name. "auto" prefers WebGPU
// and falls back to the host device.
func openDevice(name string, pool *parallel.Pool, log logger.Logger) (accel.Device, func(), error) {
	host := func() (accel.Device, func(), error) {
		return accel.NewHostDevice(pool), func() {}, nil
	}
	switch name {
	case "host":
		return host()
	case "webgpu", "auto":
		dev, err := webgpu.New()
		if err == nil {
			log.Info("using webgpu device", "adapter", dev.Name())
			return dev, dev.Release, nil
		}
		if name == "webgpu" {
			return nil, nil, err
		}
		log.Warn("webgpu unavailable, using host device", "err", err)
		return host()
	default:
		return nil, nil, fmt.Errorf("unknown device %q", name)
	}
}
