package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/rehabscore/internal/output"
	scoringsvc "github.com/panbanda/rehabscore/internal/service/scoring"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/norms"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create or update the database schema",
		Action: runMigrateCmd,
	}
}

func runMigrateCmd(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	st, err := env.openStore(c)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	color.Green("Schema applied (%s)", st.DB().Driver)
	return nil
}

func normsCmd() *cli.Command {
	return &cli.Command{
		Name:  "norms",
		Usage: "Manage normative tables",
		Subcommands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Load norms files into the database",
				ArgsUsage: "<file...>",
				Description: `Each file holds a top-level "norms" list of
{scale, domain, age_group, gender, mean, sd} entries and an optional
top-level "scale" for entries that omit it. Existing strata are replaced.`,
				Action: runNormsImportCmd,
			},
			{
				Name:  "list",
				Usage: "Show the effective norms after layering scales, database, and files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scale", Usage: "Only show norms for this scale"},
				},
				Action: runNormsListCmd,
			},
		},
	}
}

func runNormsImportCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected at least one norms file")
	}
	env, err := setup(c)
	if err != nil {
		return err
	}

	var entries []norms.Entry
	for _, path := range c.Args().Slice() {
		loaded, err := norms.LoadFile(path)
		if err != nil {
			return err
		}
		for _, e := range loaded {
			if _, err := env.scales.Get(e.Scale); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		entries = append(entries, loaded...)
	}

	st, err := env.openStore(c)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	if err := st.PutNorms(c.Context, entries); err != nil {
		return err
	}
	color.Green("Imported %d norms strata from %d files", len(entries), c.NArg())
	return nil
}

func runNormsListCmd(c *cli.Context) error {
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

	only := c.String("scale")
	var rows [][]string
	var data []norms.Entry
	for _, e := range table.Entries() {
		if only != "" && e.Scale != only {
			continue
		}
		data = append(data, e)
		rows = append(rows, []string{e.Scale, e.Domain, e.AgeGroup, e.Gender,
			strconv.FormatFloat(e.Mean, 'f', 2, 64), strconv.FormatFloat(e.SD, 'f', 2, 64)})
	}

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.NewTable("Norms",
		[]string{"Scale", "Domain", "Age group", "Gender", "Mean", "SD"},
		rows, data).WithNotes(strconv.Itoa(len(rows))+" strata"))
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import assessment responses and mark them ready to score",
		ArgsUsage: "<responses file>",
		Description: `The file (JSON or YAML) holds one response set or a list of them:

  {"instance": {"scale_id": "anxiety", "subject_id": "S-104", "age_months": 118,
                "gender": "female", "administered_at": "2026-03-02T10:00:00Z"},
   "responses": [{"item_id": 1, "value": 2}, {"item_id": 2, "omitted": true}]}

Instances without an id get a new UUID. Missing sequence numbers follow
file order.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "score",
				Usage: "Score the imported instances immediately",
			},
		},
		Action: runImportCmd,
	}
}

func runImportCmd(c *cli.Context) error {
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

	st, err := env.openStore(c)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	table, err := env.normsTable(c.Context, st)
	if err != nil {
		return err
	}
	svc := scoringsvc.New(st, env.engine(table), scoringsvc.WithLogger(env.logger))

	now := time.Now().UTC()
	ids := make([]string, 0, len(sets))
	rows := make([][]string, 0, len(sets))
	for i, set := range sets {
		inst, responses, err := prepareImport(set, now)
		if err != nil {
			return fmt.Errorf("response set %d: %w", i+1, err)
		}
		if _, err := env.scales.Get(inst.ScaleID); err != nil {
			return fmt.Errorf("response set %d: %w", i+1, err)
		}
		if err := st.CreateInstance(c.Context, inst); err != nil {
			return fmt.Errorf("response set %d: %w", i+1, err)
		}
		if err := st.RecordResponses(c.Context, inst.ID, responses); err != nil {
			return fmt.Errorf("instance %s: %w", inst.ID, err)
		}
		if err := svc.MarkReady(c.Context, inst.ID); err != nil {
			return fmt.Errorf("instance %s: %w", inst.ID, err)
		}
		ids = append(ids, inst.ID)
		rows = append(rows, []string{inst.ID, inst.ScaleID, inst.SubjectID, strconv.Itoa(len(responses))})
	}

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	if err := formatter.Output(output.NewTable("Imported",
		[]string{"Instance", "Scale", "Subject", "Responses"}, rows, nil)); err != nil {
		return err
	}

	if !c.Bool("score") {
		return nil
	}
	report, err := svc.ScoreBatch(c.Context, ids, nil)
	if report != nil {
		if outErr := formatter.Output(&output.BatchView{Report: report}); outErr != nil {
			return outErr
		}
	}
	return err
}

// prepareImport fills the defaults an imported instance needs: an id, the
// draft status, an administration time, and sequence numbers in file order.
func prepareImport(set models.ResponseSet, now time.Time) (models.AssessmentInstance, []models.ItemResponse, error) {
	inst := set.Instance
	if inst.ScaleID == "" {
		return inst, nil, fmt.Errorf("scale_id is required")
	}
	if inst.AgeMonths <= 0 {
		return inst, nil, fmt.Errorf("age_months must be positive")
	}
	if len(set.Responses) == 0 {
		return inst, nil, fmt.Errorf("no responses")
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.Gender = models.ParseGender(string(inst.Gender))
	inst.Status = models.StatusDraft
	if inst.AdministeredAt.IsZero() {
		inst.AdministeredAt = now
	}

	responses := make([]models.ItemResponse, len(set.Responses))
	copy(responses, set.Responses)
	for i := range responses {
		if responses[i].Sequence == 0 {
			responses[i].Sequence = i + 1
		}
	}
	return inst, responses, nil
}

// readResponseSets decodes a file holding one response set or a list of them.
// YAML is converted to JSON first so both formats share the JSON field names.
func readResponseSets(path string) ([]models.ResponseSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("converting %s: %w", path, err)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var sets []models.ResponseSet
		if err := json.Unmarshal(trimmed, &sets); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return sets, nil
	}
	var set models.ResponseSet
	if err := json.Unmarshal(trimmed, &set); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return []models.ResponseSet{set}, nil
}
