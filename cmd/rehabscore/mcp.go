package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/rehabscore/internal/mcpserver"
	scoringsvc "github.com/panbanda/rehabscore/internal/service/scoring"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes scoring as tools
that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "rehabscore": {
        "command": "rehabscore",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - list_scales        Scales, age ranges, and metrics
  - compute_scores     Score inline responses without saving
  - score_assessment   Score a stored instance and save the result`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-store",
				Usage: "Serve compute_scores only, without opening the database",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "manifest",
				Usage:  "Print the MCP registry manifest (server.json)",
				Action: runMCPManifestCmd,
			},
		},
		Action: runMCPCmd,
	}
}

func runMCPCmd(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}

	if c.Bool("no-store") {
		table, err := env.normsTable(c.Context, nil)
		if err != nil {
			return err
		}
		return mcpserver.NewServer(version, env.engine(table)).Run(c.Context)
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
	engine := env.engine(table)
	svc := scoringsvc.New(st, engine, scoringsvc.WithLogger(env.logger))
	return mcpserver.NewServer(version, engine, mcpserver.WithService(svc)).Run(c.Context)
}

func runMCPManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(version)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}
