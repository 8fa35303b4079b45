package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/lsmc/internal/pricing/application"
	"github.com/wyfcoding/lsmc/internal/pricing/bootstrap"
	"github.com/wyfcoding/lsmc/pkg/config"
	"github.com/wyfcoding/lsmc/pkg/logger"
)

// version 由构建时 -ldflags 注入
var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runOptions 命令行覆盖项，仅显式给出的参数覆盖配置
type runOptions struct {
	configPath string
	jsonOut    bool
	boundary   bool
	logLevel   string
	symbol     string
	useCache   bool

	r           float64
	k           float64
	dt          float64
	steps       int
	s0          float64
	sigma       float64
	paths       int
	repetitions int
	seed        uint64
	randomSeed  bool
	degree      int
	workers     int
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}
	rootCmd := &cobra.Command{
		Use:   "lsmc",
		Short: "Price an American put option by Longstaff-Schwartz Monte Carlo",
		Long: `lsmc simulates geometric Brownian motion paths, estimates the early exercise
policy by least-squares regression on [1, S, S^2] and averages the discounted
payoffs over independent repetitions.

Parameters come from built-in defaults, an optional TOML file (--config or
APP_CONFIG), APP_* environment variables and finally command line flags.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPricing(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to TOML config file (default $APP_CONFIG)")

	f := rootCmd.Flags()
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level for diagnostics written to stderr")
	f.StringVar(&opts.symbol, "symbol", "", "Symbol recorded with the result")
	f.BoolVar(&opts.useCache, "use-cache", false, "Reuse a cached result for seeded runs when redis is enabled")
	f.BoolVar(&opts.boundary, "boundary", false, "Also print the estimated exercise boundary")
	f.Float64Var(&opts.r, "rate", 0, "Risk-free interest rate")
	f.Float64Var(&opts.k, "strike", 0, "Strike price")
	f.Float64Var(&opts.dt, "dt", 0, "Time step in years")
	f.IntVar(&opts.steps, "steps", 0, "Number of time steps")
	f.Float64Var(&opts.s0, "spot", 0, "Initial underlying price")
	f.Float64Var(&opts.sigma, "sigma", 0, "Volatility")
	f.IntVar(&opts.paths, "paths", 0, "Paths per repetition")
	f.IntVar(&opts.repetitions, "repetitions", 0, "Number of independent repetitions")
	f.Uint64Var(&opts.seed, "seed", 0, "Random seed")
	f.BoolVar(&opts.randomSeed, "random-seed", false, "Seed from the clock instead of --seed")
	f.IntVar(&opts.degree, "degree", 0, "Regression polynomial degree")
	f.IntVar(&opts.workers, "workers", 0, "Repetitions priced concurrently, each with its own random stream")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 合并配置
func loadConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.GetEnv("APP_CONFIG", "")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	sim := &cfg.Simulation
	overrides := []struct {
		name  string
		apply func()
	}{
		{"symbol", func() { sim.Symbol = opts.symbol }},
		{"rate", func() { sim.R = opts.r }},
		{"strike", func() { sim.K = opts.k }},
		{"dt", func() { sim.Dt = opts.dt }},
		{"steps", func() { sim.Steps = opts.steps }},
		{"spot", func() { sim.S0 = opts.s0 }},
		{"sigma", func() { sim.Sigma = opts.sigma }},
		{"paths", func() { sim.Paths = opts.paths }},
		{"repetitions", func() { sim.Repetitions = opts.repetitions }},
		{"seed", func() { sim.Seed = opts.seed; sim.RandomSeed = false }},
		{"random-seed", func() { sim.RandomSeed = opts.randomSeed }},
		{"degree", func() { sim.Degree = opts.degree }},
		{"workers", func() { sim.Workers = opts.workers }},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			o.apply()
		}
	}
	// 命令行输出只占用 stdout，诊断日志级别由 --log-level 决定
	cfg.Logger.Level = opts.logLevel
	if cfg.Logger.Output == "" || cfg.Logger.Output == "stdout" {
		cfg.Logger.Output = "stderr"
	}
	return cfg, nil
}

func runPricing(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := bootstrap.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer components.Close()

	params := application.NewSimulationParameters(cfg.Simulation)
	result, err := components.Service.PriceAmericanPut(ctx, application.PriceAmericanPutCommand{
		Symbol:   cfg.Simulation.Symbol,
		Params:   params,
		UseCache: opts.useCache,
	})
	if err != nil {
		return err
	}

	var boundary []float64
	if opts.boundary {
		// 随机种子运行时用结果中的实际种子，边界与价格来自同一批路径
		if boundary, err = application.EstimateExerciseBoundary(params.WithSeed(result.Seed)); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		payload := map[string]any{"result": application.NewPricingResponse(result)}
		if boundary != nil {
			payload["exercise_boundary"] = boundaryJSON(boundary)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	if _, err := fmt.Fprint(out, application.FormatReport(result)); err != nil {
		return err
	}
	if boundary != nil {
		fmt.Fprintln(out)
		return application.WriteBoundary(out, params, boundary)
	}
	return nil
}

// boundaryJSON 无行权的时刻 (NaN) 输出为 null
func boundaryJSON(boundary []float64) []*float64 {
	out := make([]*float64, len(boundary))
	for t, b := range boundary {
		if !math.IsNaN(b) {
			out[t] = &boundary[t]
		}
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]string{
					"version": version,
					"go":      runtime.Version(),
				})
			}
			_, err := fmt.Fprintf(out, "lsmc version %s (%s)\n", version, runtime.Version())
			return err
		},
	}
}
