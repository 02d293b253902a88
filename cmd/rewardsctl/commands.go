package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/db"
	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/logger"
	"miniapp-rewards/pkg/redis"
	"miniapp-rewards/services/rewards"
)

const openTimeout = 30 * time.Second

// ctl holds the fx options every command adds when opening the store.
type ctl struct {
	options []fx.Option
}

// state is a read-only view of one profile. Nothing here writes back.
type state struct {
	cfg     *config.Config
	profile string
	kv      kvstore.Store
	snap    rewards.Snapshot
	tasks   []rewards.Task
	stop    func()
}

func (x *ctl) openState(c *cli.Context) (*state, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger.Build(cfg))

	profile := cfg.Storage.Profile
	if p := c.String("profile"); p != "" {
		profile = p
	}

	var kv kvstore.Store
	opts := []fx.Option{
		fx.Supply(cfg),
		kvstore.Module,
		fx.Populate(&kv),
		fx.NopLogger,
	}
	switch cfg.Storage.Driver {
	case kvstore.DriverDatabase:
		opts = append(opts, db.Module)
	case kvstore.DriverRedis:
		opts = append(opts, redis.Module)
	}
	opts = append(opts, x.options...)

	app := fx.New(opts...)
	ctx, cancel := context.WithTimeout(c.Context, openTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()
		_ = app.Stop(ctx)
	}

	snap, err := rewards.NewKVStorage(kv, profile).Load(c.Context)
	if err != nil {
		stop()
		return nil, err
	}

	return &state{
		cfg:     cfg,
		profile: profile,
		kv:      kv,
		snap:    snap,
		tasks:   rewards.Merge(rewards.CatalogFromConfig(cfg.Catalog), snap.Tasks),
		stop:    stop,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (x *ctl) TasksCommand() *cli.Command {
	return &cli.Command{
		Name:   "tasks",
		Usage:  "Print the merged task state",
		Action: x.listTasks,
	}
}

func (x *ctl) listTasks(c *cli.Context) error {
	st, err := x.openState(c)
	if err != nil {
		return err
	}
	defer st.stop()

	if c.Bool("json") {
		return printJSON(c.App.Writer, st.tasks)
	}

	maxAttempts := st.cfg.Rewards.MaxAttempts
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tREWARD\tMIN\tATTEMPTS\tSTATUS\tCOMPLETED\tBLOCKED")
	for _, t := range st.tasks {
		fmt.Fprintf(w, "%s\t%s\t%d\t%ds\t%d\t%s\t%t\t%t\n",
			t.ID, t.Platform, t.Reward, t.MinimumTime, t.Attempts,
			t.VerificationStatus, t.Completed, t.Blocked(maxAttempts))
	}
	return w.Flush()
}

func (x *ctl) StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Print the persisted user stats",
		Action: x.showStats,
	}
}

func (x *ctl) showStats(c *cli.Context) error {
	st, err := x.openState(c)
	if err != nil {
		return err
	}
	defer st.stop()

	if st.snap.Fresh {
		fmt.Fprintf(c.App.ErrWriter, "profile %q has no persisted state\n", st.profile)
	}
	return printJSON(c.App.Writer, st.snap.Stats)
}

func (x *ctl) AuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Recompute stats from verified tasks and exit non-zero on drift",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ledger",
				Usage: "also compare against the task verified event ledger",
			},
		},
		Action: x.audit,
	}
}

func (x *ctl) audit(c *cli.Context) error {
	st, err := x.openState(c)
	if err != nil {
		return err
	}
	defer st.stop()

	problems := rewards.Audit(st.tasks, st.snap.Stats)

	if c.Bool("ledger") {
		entries, err := rewards.NewLedger(st.kv).Entries(c.Context, st.profile)
		if err != nil {
			return err
		}
		problems = append(problems, rewards.AuditLedger(entries, st.tasks)...)
	}

	if len(problems) == 0 {
		fmt.Fprintf(c.App.Writer, "profile %q is consistent\n", st.profile)
		return nil
	}
	for _, p := range problems {
		fmt.Fprintln(c.App.Writer, p)
	}
	return cli.Exit(fmt.Sprintf("profile %q has %d problem(s)", st.profile, len(problems)), 2)
}
