package commands

import (
	"github.com/bbars/chunkgate/service/repository"
	"github.com/bbars/chunkgate/service/types"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func NewMigrateCommand(initRepo InitRepo) *cli.Command {
	m := &migrate{}
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Apply migrations on current database",
		Action: m.Action,
		Before: func(ctx *cli.Context) (err error) {
			m.repo, err = initRepo(ctx)
			return
		},
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "site",
				Usage: "Create or update a site after migrating. Repeatable.",
			},
			&cli.StringSliceFlag{
				Name:  "methods",
				Usage: "Methods allowed on sites given by --site.",
				Value: cli.NewStringSlice("HEAD", "GET", "OPTIONS", "LOCATE"),
			},
		},
	}
}

type migrate struct {
	repo repository.Repository
}

func (m *migrate) Action(ctx *cli.Context) (err error) {
	err = m.repo.Migrate()
	if err != nil {
		err = errors.Wrap(err, "unable to migrate db")
		return
	}

	names := ctx.StringSlice("site")
	if len(names) == 0 {
		return
	}
	methods, err := types.ParseMethodMask(ctx.StringSlice("methods"))
	if err != nil {
		err = errors.Wrap(err, "invalid methods flag")
		return
	}
	for _, name := range names {
		err = m.repo.PutSite(ctx.Context, &types.Site{
			Name:    name,
			Methods: methods,
		})
		if err != nil {
			return
		}
	}
	return
}
