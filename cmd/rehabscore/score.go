package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/rehabscore/internal/cache"
	"github.com/panbanda/rehabscore/internal/metrics"
	"github.com/panbanda/rehabscore/internal/output"
	"github.com/panbanda/rehabscore/internal/progress"
	scoringsvc "github.com/panbanda/rehabscore/internal/service/scoring"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scoring"
)

func scoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Score stored assessment instances and save the results",
		ArgsUsage: "[instance-id...]",
		Description: `Scores ready (or previously completed) instances. One id prints the full
result; several ids, or --all-ready, score concurrently and print a summary.

Examples:
  rehabscore score 6f1c...            # Score one instance
  rehabscore score --all-ready        # Score everything waiting
  rehabscore score --all-ready -f json --metrics-file scoring.prom`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all-ready",
				Usage: "Score every instance in the ready state",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent scoring jobs (default engine.workers, then CPU count)",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write Prometheus metrics for this run to a textfile-collector file",
			},
		},
		Action: runScoreCmd,
	}
}

func runScoreCmd(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	st, err := env.openStore(c)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	table, err := env.normsTable(c.Context, st)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []scoringsvc.Option{
		scoringsvc.WithLogger(env.logger),
		scoringsvc.WithMetrics(metrics.New(reg)),
	}
	workers := env.cfg.Engine.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}
	if workers > 0 {
		opts = append(opts, scoringsvc.WithWorkers(workers))
	}
	svc := scoringsvc.New(st, env.engine(table), opts...)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids := c.Args().Slice()
	if c.Bool("all-ready") {
		ready, err := svc.ReadyIDs(ctx)
		if err != nil {
			return err
		}
		ids = append(ids, ready...)
	}
	if len(ids) == 0 {
		color.Yellow("No assessments to score")
		return nil
	}

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	var scoreErr error
	if len(ids) == 1 && !c.Bool("all-ready") {
		var res *models.ScoreResult
		res, scoreErr = svc.Score(ctx, ids[0])
		if scoreErr == nil {
			s, _ := env.scales.Get(res.ScaleID)
			scoreErr = formatter.Output(&output.ResultView{Result: res, Scale: s, Status: models.StatusCompleted})
		}
	} else {
		scoreErr = scoreMany(ctx, svc, ids, formatter)
	}

	if path := c.String("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			env.logger.Warn("writing metrics file failed", "path", path, "error", err)
		}
	}
	return scoreErr
}

func scoreMany(ctx context.Context, svc *scoringsvc.Service, ids []string, formatter *output.Formatter) error {
	tracker := progress.NewTracker("Scoring assessments...", len(ids))
	report, err := svc.ScoreBatch(ctx, ids, tracker.Tick)
	if err != nil {
		tracker.FinishFailures(report.Summary.Failed, len(ids))
	} else {
		tracker.FinishSuccess()
	}

	if outErr := formatter.Output(&output.BatchView{Report: report}); outErr != nil {
		return outErr
	}
	return err
}

func computeCmd() *cli.Command {
	return &cli.Command{
		Name:      "compute",
		Usage:     "Score a responses file without touching the database",
		ArgsUsage: "<responses file>",
		Description: `Reads the same JSON or YAML format as import and prints the results.
Norms come from the scale definitions and the configured norms files.
Results are cached by input digest until the scale or its norms change.`,
		Action: runComputeCmd,
	}
}

func runComputeCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one responses file")
	}
	env, err := setup(c)
	if err != nil {
		return err
	}
	sets, err := readResponseSets(c.Args().First())
	if err != nil {
		return err
	}

	table, err := env.normsTable(c.Context, nil)
	if err != nil {
		return err
	}
	engine := env.engine(table)

	rc, err := openCache(env, !c.Bool("no-cache"))
	if err != nil {
		return err
	}

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	for i, set := range sets {
		view, err := computeOne(engine, rc, table.Digest(set.Instance.ScaleID), set)
		if err != nil {
			return fmt.Errorf("response set %d: %w", i+1, err)
		}
		if view.Cached {
			env.logger.Debug("result served from cache", "input_digest", view.Result.InputDigest)
		}
		if err := formatter.Output(view); err != nil {
			return err
		}
	}
	return nil
}

func computeOne(engine *scoring.Engine, rc *cache.Cache, normsDigest string, set models.ResponseSet) (*output.ResultView, error) {
	s, err := engine.Scales().Get(set.Instance.ScaleID)
	if err != nil {
		return nil, err
	}

	inst := set.Instance
	inst.Gender = models.ParseGender(string(inst.Gender))
	responses := make([]models.ItemResponse, len(set.Responses))
	copy(responses, set.Responses)
	for i := range responses {
		if responses[i].Sequence == 0 {
			responses[i].Sequence = i + 1
		}
	}

	digest := scoring.InputDigest(inst, responses)
	if res, ok := rc.GetResult(inst.ID, digest, engine.Scales().DigestOf(s.ID), normsDigest); ok {
		return &output.ResultView{Result: res, Scale: s, Status: models.StatusScored, Cached: true}, nil
	}

	res, err := engine.Compute(inst, responses)
	if err != nil {
		return nil, err
	}
	if err := rc.PutResult(res, normsDigest); err != nil {
		return nil, fmt.Errorf("caching result: %w", err)
	}
	return &output.ResultView{Result: res, Scale: s, Status: models.StatusScored}, nil
}

func resultCmd() *cli.Command {
	return &cli.Command{
		Name:      "result",
		Usage:     "Show the stored score result of an instance",
		ArgsUsage: "<instance-id>",
		Action:    runResultCmd,
	}
}

func runResultCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one instance id")
	}
	env, err := setup(c)
	if err != nil {
		return err
	}
	st, err := env.openStore(c)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	res, err := st.LoadScoreResult(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	s, _ := env.scales.Get(res.ScaleID)

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(&output.ResultView{Result: res, Scale: s, Status: models.StatusCompleted})
}
