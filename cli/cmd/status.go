package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/isobar/cli/reader"
	"github.com/pithecene-io/isobar/cli/render"
	"github.com/pithecene-io/isobar/cli/tui"
	"github.com/pithecene-io/isobar/lode"
)

// statusTimeout bounds ledger reads.
const statusTimeout = 30 * time.Second

// StatusCommand returns the status command.
// Status summarizes the ledger per batch, with the latest metrics snapshot.
func StatusCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "flow",
			Usage: "Filter by flow: sequence or fetch",
		},
		&cli.StringFlag{
			Name:  "scope",
			Usage: "Filter by experiment or archive",
		},
		&cli.StringFlag{
			Name:  "batch-id",
			Usage: "Filter by batch ID",
		},
		&cli.BoolFlag{
			Name:  "records",
			Usage: "List individual run and fetch records instead of batch summaries",
		},
	}
	flags = append(flags, ReadOnlyFlags()...)
	flags = append(flags, StorageFlags()...)

	return &cli.Command{
		Name:   "status",
		Usage:  "Show ledger status (batches, records, latest metrics)",
		Flags:  flags,
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	fileCfg, err := loadConfig(c)
	if err != nil {
		return setupExit("%v", err)
	}
	st := storageFromFlags(c, fileCfg.Storage)

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	filter := lode.Filter{
		Flow:    c.String("flow"),
		Scope:   c.String("scope"),
		BatchID: c.String("batch-id"),
	}

	if c.Bool("records") {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported with --records", exitSetupError)
		}
		rows, err := reader.NewLodeReader(ds).Records(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to read records: %w", err)
		}
		return r.Render(rows)
	}

	resp, err := loadStatus(ctx, reader.NewLodeReader(ds), filter)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatus, resp)
	}

	// The table format lists batches; json and yaml carry the full response.
	if r.Format() == render.FormatTable {
		return r.Render(resp.Batches)
	}
	return r.Render(resp)
}

// loadStatus assembles the status payload from a reader.
func loadStatus(ctx context.Context, rd reader.Reader, filter lode.Filter) (*reader.StatusResponse, error) {
	batches, err := rd.Batches(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read batches: %w", err)
	}
	snapshot, err := rd.LatestMetrics(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	return &reader.StatusResponse{Batches: batches, Metrics: snapshot}, nil
}
