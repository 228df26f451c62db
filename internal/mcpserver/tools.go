package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/rehabscore/internal/output"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// FormatInput is shared by every tool.
type FormatInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// ListScalesInput selects scales to list.
type ListScalesInput struct {
	FormatInput
	IDs []string `json:"ids,omitempty" jsonschema:"Scale ids to include. All scales when empty."`
}

// ResponseInput is one answered or omitted item.
type ResponseInput struct {
	ItemID   int  `json:"item_id" jsonschema:"Item number as printed on the form."`
	Value    int  `json:"value,omitempty" jsonschema:"Answer value within the scale's response range."`
	Omitted  bool `json:"omitted,omitempty" jsonschema:"True when the item was skipped."`
	Sequence int  `json:"sequence,omitempty" jsonschema:"Recording order. The latest answer to an item wins."`
}

// ComputeScoresInput describes one administration to score inline.
type ComputeScoresInput struct {
	FormatInput
	ScaleID        string          `json:"scale_id" jsonschema:"Scale id from list_scales."`
	AgeMonths      int             `json:"age_months" jsonschema:"Subject age in whole months at administration."`
	Gender         string          `json:"gender,omitempty" jsonschema:"male, female, or empty for combined norms."`
	AdministeredAt string          `json:"administered_at,omitempty" jsonschema:"RFC 3339 administration time."`
	InstanceID     string          `json:"instance_id,omitempty" jsonschema:"Optional id echoed in the result."`
	Responses      []ResponseInput `json:"responses" jsonschema:"Item responses."`
}

// ScoreAssessmentInput names a stored instance.
type ScoreAssessmentInput struct {
	FormatInput
	ID string `json:"id" jsonschema:"Assessment instance id."`
}

func getFormat(input FormatInput) output.Format {
	switch input.Format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(data any, format output.Format) (string, error) {
	switch format {
	case output.FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case output.FormatMarkdown:
		out, err := output.MarshalTOON(data)
		if err != nil {
			return "", err
		}
		return "```\n" + out + "\n```", nil
	default:
		return output.MarshalTOON(data)
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

// Tool handlers

func (s *Server) handleListScales(ctx context.Context, req *mcp.CallToolRequest, input ListScalesInput) (*mcp.CallToolResult, any, error) {
	reg := s.engine.Scales()

	var scales []*scale.Scale
	if len(input.IDs) == 0 {
		scales = reg.All()
	} else {
		for _, id := range input.IDs {
			sc, err := reg.Get(id)
			if err != nil {
				return toolError(err.Error())
			}
			scales = append(scales, sc)
		}
	}

	summaries := make([]output.ScaleSummary, 0, len(scales))
	for _, sc := range scales {
		summaries = append(summaries, output.SummarizeScale(sc))
	}
	return toolResult(struct {
		Scales []output.ScaleSummary `json:"scales"`
	}{summaries}, getFormat(input.FormatInput))
}

func (s *Server) handleComputeScores(ctx context.Context, req *mcp.CallToolRequest, input ComputeScoresInput) (*mcp.CallToolResult, any, error) {
	if input.ScaleID == "" {
		return toolError("scale_id is required")
	}
	if len(input.Responses) == 0 {
		return toolError("no responses supplied")
	}

	inst := models.AssessmentInstance{
		ID:        input.InstanceID,
		ScaleID:   input.ScaleID,
		AgeMonths: input.AgeMonths,
		Gender:    models.ParseGender(input.Gender),
		Status:    models.StatusReady,
	}
	if input.AdministeredAt != "" {
		at, err := time.Parse(time.RFC3339, input.AdministeredAt)
		if err != nil {
			return toolError("administered_at: " + err.Error())
		}
		inst.AdministeredAt = at
	}

	responses := make([]models.ItemResponse, len(input.Responses))
	for i, r := range input.Responses {
		seq := r.Sequence
		if seq == 0 {
			seq = i + 1
		}
		responses[i] = models.ItemResponse{ItemID: r.ItemID, Value: r.Value, Omitted: r.Omitted, Sequence: seq}
	}

	res, err := s.engine.Compute(inst, responses)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(res, getFormat(input.FormatInput))
}

func (s *Server) handleScoreAssessment(ctx context.Context, req *mcp.CallToolRequest, input ScoreAssessmentInput) (*mcp.CallToolResult, any, error) {
	if s.service == nil {
		return toolError("no assessment store configured")
	}
	if input.ID == "" {
		return toolError("id is required")
	}

	res, err := s.service.Score(ctx, input.ID)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(res, getFormat(input.FormatInput))
}
