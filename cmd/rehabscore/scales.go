package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/rehabscore/internal/output"
	"github.com/panbanda/rehabscore/pkg/scale"
)

func scalesCmd() *cli.Command {
	return &cli.Command{
		Name:  "scales",
		Usage: "List, export, and validate scale definitions",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the available scales",
				Action: runScalesListCmd,
			},
			{
				Name:      "show",
				Usage:     "Print a scale definition (YAML unless --format is json, toon, or markdown)",
				ArgsUsage: "<scale-id>",
				Action:    runScalesShowCmd,
			},
			{
				Name:      "validate",
				Usage:     "Validate scale definition files",
				ArgsUsage: "<file...>",
				Action:    runScalesValidateCmd,
			},
		},
	}
}

func runScalesListCmd(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(output.ScalesTable(env.scales.All()))
}

func runScalesShowCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one scale id")
	}
	env, err := setup(c)
	if err != nil {
		return err
	}
	s, err := env.scales.Get(c.Args().First())
	if err != nil {
		return err
	}

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(&scaleView{scale: s})
}

// scaleView exposes a definition to the JSON and TOON renderers.
type scaleView struct {
	scale *scale.Scale
}

func (v *scaleView) RenderData() any { return v.scale }

func (v *scaleView) RenderText(w io.Writer, _ bool) error {
	return yaml.NewEncoder(w).Encode(v.scale)
}

func (v *scaleView) RenderMarkdown(w io.Writer) error {
	data, err := yaml.Marshal(v.scale)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "```yaml\n%s```\n", data)
	return err
}

func runScalesValidateCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected at least one scale file")
	}

	var errs []error
	for _, path := range c.Args().Slice() {
		s, err := scale.Load(path)
		if err != nil {
			color.Red("✗ %s", path)
			fmt.Fprintf(c.App.Writer, "  %v\n", err)
			errs = append(errs, err)
			continue
		}
		color.Green("✓ %s: %s v%s, %d domains, %d items (digest %s)", path, s.ID, s.Version, len(s.Domains), s.ItemCount(), s.Digest())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d scale files are invalid: %w", len(errs), c.NArg(), errors.Join(errs...))
	}
	return nil
}
