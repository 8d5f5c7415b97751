package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/isobar/cli/render"
	"github.com/pithecene-io/isobar/fetch"
)

// PlanRow is one planned request.
type PlanRow struct {
	Destination string `json:"destination"`
	Dataset     string `json:"dataset"`
	Tag         string `json:"tag"`
	Year        int    `json:"year"`
	LevelHPa    *int   `json:"level_hpa,omitempty"`
	Variables   int    `json:"variables"`
}

// PlanCommand returns the plan command.
// It prints the destination of every request without contacting the service.
func PlanCommand() *cli.Command {
	flags := batchFlags()
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "plan",
		Usage:  "Show the requests and destination files of the fetch batch",
		Flags:  flags,
		Action: planAction,
	}
}

func planAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for plan command
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for plan command", exitSetupError)
	}

	fileCfg, err := loadConfig(c)
	if err != nil {
		return setupExit("%v", err)
	}
	fc := fetchFromFlags(c, fileCfg.Fetch)

	names, err := naming(fc)
	if err != nil {
		return setupExit("invalid fetch config: %v", err)
	}

	plan, err := fetch.Plan(fc.Templates, fc.StartYear, fc.EndYear, names)
	if err != nil {
		return setupExit("invalid plan: %v", err)
	}

	return r.Render(planRows(plan))
}

func planRows(plan []fetch.Planned) []PlanRow {
	rows := make([]PlanRow, 0, len(plan))
	for _, p := range plan {
		rows = append(rows, PlanRow{
			Destination: p.Destination,
			Dataset:     p.Request.Template.Dataset,
			Tag:         p.Request.Template.Tag,
			Year:        p.Request.Year,
			LevelHPa:    p.Request.Template.PressureLevel,
			Variables:   len(p.Request.Template.Variables),
		})
	}
	return rows
}
