package fragfinder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/morikuni/failure"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const ErrOptimizeFailed failure.StringCode = "OptimizeFailed"

type Status string

const (
	StatusOptimized Status = "optimized"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

type TableResult struct {
	Table     *Table
	Status    Status
	Messages  []Message
	Reclaimed int64
	Elapsed   time.Duration
	Err       error
}

func (r *TableResult) errMessage() string {
	if m, ok := failure.MessageOf(r.Err); ok {
		return m
	}

	return RootCause(r.Err).Error()
}

// RootCause returns the innermost error of the chain.
func RootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

type Summary struct {
	Results   []*TableResult
	Optimized int
	Failed    int
	Skipped   int
	Reclaimed int64
	Elapsed   time.Duration
}

// Err returns the error of the first failed table in selection order.
func (s *Summary) Err() error {
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			return r.Err
		}
	}

	return nil
}

type Optimizer struct {
	Adapter Adapter
	Workers int
	DryRun  bool
	Options OptimizeOptions
	Log     logrus.FieldLogger
}

// Run optimizes tables with at most Workers statements in flight. A failing
// table does not stop the others. Once ctx is done no further table is
// started and the remaining ones are reported as skipped.
func (o *Optimizer) Run(ctx context.Context, tables []*Table) *Summary {
	start := time.Now()
	results := make([]*TableResult, len(tables))

	workers := o.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i, t := range tables {
		i, t := i, t
		if ctx.Err() != nil {
			results[i] = &TableResult{Table: t, Status: StatusSkipped, Err: ctx.Err()}
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = &TableResult{Table: t, Status: StatusSkipped, Err: ctx.Err()}
				return nil
			}
			results[i] = o.optimize(ctx, i+1, len(tables), t)
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusOptimized:
			s.Optimized++
			s.Reclaimed += r.Reclaimed
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	s.Elapsed = time.Since(start)

	return s
}

func (o *Optimizer) optimize(ctx context.Context, pos, total int, t *Table) *TableResult {
	log := o.Log.WithFields(logrus.Fields{
		"schema":   t.DBName,
		"table":    t.Name,
		"engine":   t.Engine,
		"position": pos,
		"total":    total,
	})

	if o.DryRun {
		log.WithField("data_free", t.DataFree).Info("dry run, not optimizing")
		return &TableResult{Table: t, Status: StatusSkipped}
	}

	res := &TableResult{Table: t}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	before, err := o.Adapter.Table(ctx, t.DBName, t.Name)
	if err != nil {
		res.Status = StatusFailed
		res.Err = failure.Wrap(err)
		log.WithError(err).Error("failed to read table status")
		return res
	}

	log.WithField("data_free", before.DataFree).Info("optimizing")
	out, err := o.Adapter.Optimize(ctx, before, o.Options)
	if out != nil {
		res.Messages = out.Messages
		for _, m := range out.Messages {
			if strings.EqualFold(m.Type, "note") {
				log.Info(m.String())
				continue
			}
			log.Debug(m.String())
		}
	}
	if err != nil {
		res.Status = StatusFailed
		res.Err = failure.Wrap(err)
		log.WithError(err).Error("optimize failed")
		return res
	}
	if m, ok := out.Err(); ok {
		res.Status = StatusFailed
		res.Err = failure.New(ErrOptimizeFailed,
			failure.Context{"table": t.String()},
			failure.Message(m.Text),
		)
		log.WithField("msg_text", m.Text).Error("optimize reported an error")
		return res
	}

	after, err := o.Adapter.Table(ctx, t.DBName, t.Name)
	if err != nil {
		res.Status = StatusFailed
		res.Err = failure.Wrap(err)
		log.WithError(err).Error("failed to read table status")
		return res
	}

	res.Status = StatusOptimized
	res.Reclaimed = reclaimed(before, after)
	log.WithFields(logrus.Fields{
		"reclaimed": res.Reclaimed,
		"elapsed":   time.Since(start),
	}).Info("optimized")

	return res
}

func reclaimed(before, after *Table) int64 {
	n := before.Size() + before.DataFree - (after.Size() + after.DataFree)
	if n < 0 {
		return 0
	}

	return n
}
