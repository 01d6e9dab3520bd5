package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"datachat/internal/chart"
)

// einoTools exposes the SQL, retrieval and chart capabilities as agent
// tools for react mode. The dispatch pipelines call the same code
// directly.
func (o *Orchestrator) einoTools() []tool.BaseTool {
	tools := []tool.BaseTool{
		o.listTablesTool(),
		o.tableSchemaTool(),
		o.checkQueryTool(),
		o.runQueryTool(),
		o.chartTool(),
	}
	if o.retriever != nil {
		tools = append(tools, o.ragTool())
	}
	return tools
}

type listTablesParams struct{}

func (o *Orchestrator) listTablesTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name:        "sql_list_tables",
		Desc:        "List the tables available in the database. Call this first for any data question.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
	return utils.NewTool(info, func(ctx context.Context, _ *listTablesParams) (string, error) {
		tables, err := o.sqlTools.ListTables(ctx)
		if err != nil {
			return "", err
		}
		return strings.Join(tables, ", "), nil
	})
}

type tableSchemaParams struct {
	Tables string `json:"tables"`
}

func (o *Orchestrator) tableSchemaTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "sql_table_schema",
		Desc: "Get the CREATE TABLE statements for a comma-separated list of table names.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"tables": {
				Desc:     "Comma-separated table names, e.g. \"albums, artists\"",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, params *tableSchemaParams) (string, error) {
		if params == nil || strings.TrimSpace(params.Tables) == "" {
			return "", errors.New("tables is required")
		}
		names := strings.Split(params.Tables, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		resolved, err := o.sqlTools.ResolveTables(ctx, names)
		if err != nil {
			return "", err
		}
		return o.sqlTools.TableSchema(ctx, resolved)
	})
}

type queryParams struct {
	Query string `json:"query"`
}

func (o *Orchestrator) checkQueryTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "sql_check_query",
		Desc: "Review a SQL query for mistakes before running it. Returns the corrected query.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The SQL query to review",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, params *queryParams) (string, error) {
		if params == nil || strings.TrimSpace(params.Query) == "" {
			return "", errors.New("query is required")
		}
		checked, err := o.checkQuery(ctx, params.Query, "")
		if err != nil {
			return "", err
		}
		return checked, nil
	})
}

func (o *Orchestrator) runQueryTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "sql_run_query",
		Desc: "Execute a read-only SQL query and return the rows. Destructive statements are rejected.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "A single SELECT statement",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, params *queryParams) (string, error) {
		if params == nil || strings.TrimSpace(params.Query) == "" {
			return "", errors.New("query is required")
		}
		result, err := o.sqlTools.RunQuery(ctx, params.Query)
		if err != nil {
			return "", err
		}
		if len(result.Rows) == 0 {
			return MsgNoRows, nil
		}
		return result.Render(), nil
	})
}

type ragParams struct {
	Question string `json:"question"`
}

func (o *Orchestrator) ragTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "rag_tool",
		Desc: "Search the indexed documents for passages relevant to a question about people, company info or policies.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Desc:     "The question to look up in the documents",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, params *ragParams) (string, error) {
		if params == nil || strings.TrimSpace(params.Question) == "" {
			return "", errors.New("question is required")
		}
		docs, err := o.retriever.Query(ctx, params.Question)
		if err != nil {
			return "", err
		}
		if len(docs) == 0 {
			return MsgNoContext, nil
		}
		var b strings.Builder
		for _, doc := range docs {
			b.WriteString(doc.Content)
			b.WriteString("\n\n")
		}
		return strings.TrimSpace(b.String()), nil
	})
}

type chartParams struct {
	Query     string `json:"query"`
	ChartType string `json:"chart_type"`
}

func (o *Orchestrator) chartTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "analytics_tool",
		Desc: "Render a chart from a SQL query. Returns a base64-encoded PNG on success, or a diagnostic message.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "SELECT statement producing the chart data",
				Type:     schema.String,
				Required: true,
			},
			"chart_type": {
				Desc:     "One of: histogram, pie, bar",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, params *chartParams) (string, error) {
		if params == nil {
			return "", errors.New("missing chart parameters")
		}
		if strings.TrimSpace(params.Query) != "" {
			if err := validateReadOnly(params.Query); err != nil {
				return "", err
			}
		}
		result := o.chart.Generate(ctx, params.Query, chart.Kind(strings.ToLower(strings.TrimSpace(params.ChartType))))
		if result.IsImage() {
			return base64.StdEncoding.EncodeToString(result.PNG), nil
		}
		return result.Message, nil
	})
}
