package main

import (
	"github.com/spf13/cobra"

	"github.com/edwinsyarief/hako"
	"github.com/edwinsyarief/hako/task"
)

func queryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Run a read/write query over a fixed population",
		RunE: func(*cobra.Command, []string) error {
			return runQuery(opts, false)
		},
	}
}

func parallelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parallel",
		Short: "Run the query workload on the task pool",
		RunE: func(*cobra.Command, []string) error {
			return runQuery(opts, true)
		},
	}
}

func runQuery(opts *options, parallel bool) error {
	src, err := opts.settings()
	if err != nil {
		return err
	}
	logger := opts.logger(src)

	var pool *task.Pool
	if parallel {
		pool = task.NewPool(src, task.WithLogger(logger))
		defer pool.Close()
	}

	var runErr error
	perr := opts.profiled(func() {
		for r := 0; r < opts.rounds; r++ {
			w, c1, c2 := opts.newWorld(src, logger)
			hako.NewEntitiesWith(hako.NewBuilder(w, hako.MakeArch(c1, c2)), opts.entities, comp2{V: 1, W: 2})
			access := hako.NewAccess("sum").Reading(c2).Writing(c1)
			body := func(q *hako.QueryContext) {
				c1, c2 := hako.Write[comp1](q), hako.Read[comp2](q)
				c1.V += c2.V
				c1.W += c2.W
			}
			for i := 0; i < opts.iters; i++ {
				if !parallel {
					w.Execute(access, body)
					continue
				}
				if err := w.ExecuteParallel(pool, nil, access, body).Wait(); err != nil {
					runErr = err
					return
				}
			}
			w.LogStats(logger.GetLevel())
		}
	})
	if perr != nil {
		return perr
	}
	return runErr
}
