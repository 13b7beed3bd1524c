package main

import (
	"github.com/spf13/cobra"

	"github.com/edwinsyarief/hako"
)

func entitiesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "Create, iterate and destroy batches of entities",
		RunE: func(*cobra.Command, []string) error {
			src, err := opts.settings()
			if err != nil {
				return err
			}
			logger := opts.logger(src)
			return opts.profiled(func() {
				for r := 0; r < opts.rounds; r++ {
					w, c1, c2 := opts.newWorld(src, logger)
					b := hako.NewBuilder(w, hako.MakeArch(c1, c2))
					access := hako.NewAccess("sum").Reading(c2).Writing(c1)
					for i := 0; i < opts.iters; i++ {
						b.NewEntities(opts.entities)
						w.Execute(access, func(q *hako.QueryContext) {
							c1, c2 := hako.Write[comp1](q), hako.Read[comp2](q)
							c1.V += c2.V
							c1.W += c2.W
							q.Queue().DestroyEntity(q.Entity())
						})
						w.Sync()
					}
					w.LogStats(logger.GetLevel())
				}
			})
		},
	}
}
