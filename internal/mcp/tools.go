package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/pipeline"
)

// Tool names.
const (
	ToolEnrichRow      = "enrich-row"
	ToolPlanEnrichment = "plan-enrichment"
	ToolDescribe       = "describe-enrichment-server"
)

const defaultIdentifierColumn = "email"

// EnrichRowInput is the input schema for enrich-row.
type EnrichRowInput struct {
	Row              map[string]any          `json:"row" jsonschema:"the row to enrich as column name to value"`
	Fields           []model.FieldDefinition `json:"fields" jsonschema:"fields to enrich in this row"`
	IdentifierColumn string                  `json:"identifierColumn,omitempty" jsonschema:"column that identifies the row (default email)"`
	NameColumn       string                  `json:"nameColumn,omitempty" jsonschema:"column holding a person name, surfaced as Person Name"`
	RowIndex         int                     `json:"rowIndex,omitempty" jsonschema:"zero based index of the row in its sheet"`
}

// RowResultOutput is the output schema for enrich-row.
type RowResultOutput struct {
	RowIndex     int                         `json:"rowIndex"`
	OriginalData map[string]string           `json:"originalData"`
	Enrichments  map[string]model.CellResult `json:"enrichments"`
	Status       string                      `json:"status"`
	Error        string                      `json:"error,omitempty"`
}

// PlanInput is the input schema for plan-enrichment.
type PlanInput struct {
	Row      map[string]any        `json:"row" jsonschema:"the row to plan for as column name to value"`
	Field    model.FieldDefinition `json:"field" jsonschema:"the field to plan"`
	RowIndex int                   `json:"rowIndex,omitempty" jsonschema:"zero based index of the row"`
	Rows     []map[string]any      `json:"rows,omitempty" jsonschema:"all rows of the sheet for neighbor context"`
}

// PlanOutput is the output schema for plan-enrichment.
type PlanOutput struct {
	Field               string   `json:"field"`
	RowIndex            int      `json:"rowIndex"`
	Directive           string   `json:"directive"`
	Ready               bool     `json:"ready"`
	MissingDependencies []string `json:"missingDependencies"`
}

// DescribeInput is the empty input of describe-enrichment-server.
type DescribeInput struct{}

// DescribeOutput is the output schema for describe-enrichment-server.
type DescribeOutput struct {
	Name         string     `json:"name"`
	Version      string     `json:"version"`
	Instructions string     `json:"instructions"`
	Tools        []ToolInfo `json:"tools"`
}

func (s *Server) registerTools() {
	addTool(s, ToolEnrichRow,
		"Enrich one row: extract every requested field in dependency order and return values with confidence and sources",
		s.handleEnrichRow)
	addTool(s, ToolPlanEnrichment,
		"Build the extraction directive for one field of one row without calling the extraction provider",
		s.handlePlan)
	addTool(s, ToolDescribe,
		"Describe this server and its tools",
		s.handleDescribe)
}

func (s *Server) handleEnrichRow(ctx context.Context, _ *mcp.CallToolRequest, in EnrichRowInput) (*mcp.CallToolResult, RowResultOutput, error) {
	idCol := strings.TrimSpace(in.IdentifierColumn)
	if idCol == "" {
		idCol = defaultIdentifierColumn
	}
	raw := stringValues(in.Row)
	if strings.TrimSpace(raw[idCol]) == "" {
		return nil, RowResultOutput{}, eris.Errorf("row is missing identifier column %q", idCol)
	}
	if in.NameColumn != "" {
		if name := strings.TrimSpace(raw[in.NameColumn]); name != "" {
			raw[model.NameColumn] = name
		}
	}
	row := model.RowFromMap(raw, []string{idCol})

	log := zap.L().With(zap.String("tool", ToolEnrichRow), zap.String("identifier", raw[idCol]))
	log.Info("enrich-row called", zap.Int("fields", len(in.Fields)))

	res, err := s.orch.EnrichRow(ctx, row, in.RowIndex, nil, in.Fields, s.cfg)
	if err != nil {
		return nil, RowResultOutput{}, err
	}
	return nil, toRowResultOutput(res), nil
}

func (s *Server) handlePlan(_ context.Context, _ *mcp.CallToolRequest, in PlanInput) (*mcp.CallToolResult, PlanOutput, error) {
	if strings.TrimSpace(in.Field.Name) == "" {
		return nil, PlanOutput{}, eris.New("field name is required")
	}
	row := model.RowFromAny(in.Row, nil)

	var all []model.Row
	if len(in.Rows) > 0 {
		all = make([]model.Row, len(in.Rows))
		for i, r := range in.Rows {
			all[i] = model.RowFromAny(r, nil)
		}
	}

	plan := pipeline.BuildPlan(pipeline.PlanInput{
		Field:    in.Field,
		Row:      row,
		RowIndex: in.RowIndex,
		AllRows:  all,
		Context:  s.cfg,
	})
	return nil, PlanOutput{
		Field:               plan.Field,
		RowIndex:            plan.RowIndex,
		Directive:           plan.Directive,
		Ready:               len(plan.MissingDependencies) == 0,
		MissingDependencies: plan.MissingDependencies,
	}, nil
}

func (s *Server) handleDescribe(_ context.Context, _ *mcp.CallToolRequest, _ DescribeInput) (*mcp.CallToolResult, DescribeOutput, error) {
	return nil, DescribeOutput{
		Name:         s.name,
		Version:      s.ver,
		Instructions: serverInstructions,
		Tools:        s.Tools(),
	}, nil
}

func stringValues(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = model.FormatValue(v)
	}
	return out
}

func toRowResultOutput(r model.RowResult) RowResultOutput {
	return RowResultOutput{
		RowIndex:     r.RowIndex,
		OriginalData: r.OriginalData.Map(),
		Enrichments:  r.Enrichments,
		Status:       string(r.Status),
		Error:        r.Error,
	}
}
