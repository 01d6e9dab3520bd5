package ai

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"datachat/internal/chart"
	"datachat/internal/logx"
	"datachat/internal/models"
	"datachat/internal/rag"
)

// Retriever finds document chunks relevant to a question.
type Retriever interface {
	Query(ctx context.Context, question string) ([]rag.Document, error)
}

// ChartRenderer turns a query plus chart kind into a chart result.
type ChartRenderer interface {
	Generate(ctx context.Context, query string, kind chart.Kind) chart.Result
}

// Modes for the router loop.
const (
	ModeDispatch = "dispatch" // classify once, then a fixed pipeline per intent
	ModeReact    = "react"    // model-driven tool loop over the same tools
)

// Config wires the orchestrator's collaborators.
type Config struct {
	Model           model.ToolCallingChatModel
	DataDB          *sql.DB
	Dialect         string
	Retriever       Retriever
	Chart           ChartRenderer
	Memory          Memory
	MaxQueryRetries int
	Mode            string
}

// Orchestrator routes one question to the SQL, retrieval or chart
// capability and produces the final answer. Tool calls for one question
// run strictly in sequence.
type Orchestrator struct {
	model      model.ToolCallingChatModel
	sqlTools   *sqlTools
	retriever  Retriever
	chart      ChartRenderer
	memory     Memory
	maxRetries int
	mode       string
	agent      *react.Agent
}

// NewOrchestrator validates the wiring and, for react mode, builds the
// agent over the registered tools.
func NewOrchestrator(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Model == nil {
		return nil, errors.New("chat model is required")
	}
	if cfg.DataDB == nil {
		return nil, errors.New("data database is required")
	}
	if cfg.Chart == nil {
		return nil, errors.New("chart renderer is required")
	}
	if cfg.MaxQueryRetries <= 0 {
		cfg.MaxQueryRetries = 3
	}
	if cfg.Memory == nil {
		cfg.Memory = NoopMemory{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeDispatch
	}
	if cfg.Mode != ModeDispatch && cfg.Mode != ModeReact {
		return nil, fmt.Errorf("invalid router mode: %s", cfg.Mode)
	}

	o := &Orchestrator{
		model:      cfg.Model,
		sqlTools:   newSQLTools(cfg.DataDB, cfg.Dialect),
		retriever:  cfg.Retriever,
		chart:      cfg.Chart,
		memory:     cfg.Memory,
		maxRetries: cfg.MaxQueryRetries,
		mode:       cfg.Mode,
	}

	if o.mode == ModeReact {
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: cfg.Model,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: o.einoTools(),
			},
			MessageModifier: func(_ context.Context, input []*schema.Message) []*schema.Message {
				return append([]*schema.Message{schema.SystemMessage(routingPrompt)}, input...)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		o.agent = agent
	}
	return o, nil
}

// Ask answers one question for the given session.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}

	if o.mode == ModeReact {
		return o.askReact(ctx, sessionID, question)
	}

	intent, err := o.classify(ctx, question)
	if err != nil {
		return nil, err
	}
	logx.Debug().Str("session", sessionID).Str("intent", string(intent)).Msg("question classified")

	if intent == IntentNone {
		// refusal path: no tool runs at all
		return models.TextAnswer(MsgRefusal), nil
	}

	history, err := o.memory.History(ctx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session", sessionID).Msg("history unavailable, continuing without it")
		history = nil
	}

	var answer *models.Answer
	switch intent {
	case IntentSQL:
		text, err := o.sqlAnswer(ctx, question, history)
		if err != nil {
			return nil, err
		}
		answer = models.TextAnswer(text)
	case IntentDocs:
		text, err := o.ragAnswer(ctx, question, history)
		if err != nil {
			return nil, err
		}
		answer = models.TextAnswer(text)
	case IntentChart:
		answer, err = o.chartAnswer(ctx, question)
		if err != nil {
			return nil, err
		}
	}

	o.remember(ctx, sessionID, question, answer)
	return answer, nil
}

func (o *Orchestrator) remember(ctx context.Context, sessionID, question string, answer *models.Answer) {
	if err := o.memory.Append(ctx, sessionID, schema.UserMessage(question)); err != nil {
		logx.Warn().Err(err).Str("session", sessionID).Msg("failed to store user turn")
		return
	}
	stored := answer.Text
	if answer.Type == models.AnswerImage {
		stored = "(rendered chart)"
	}
	if err := o.memory.Append(ctx, sessionID, schema.AssistantMessage(stored, nil)); err != nil {
		logx.Warn().Err(err).Str("session", sessionID).Msg("failed to store assistant turn")
	}
}

// askReact runs the teacher-style agent loop instead of the dispatch
// pipelines. History still comes from session memory.
func (o *Orchestrator) askReact(ctx context.Context, sessionID, question string) (*models.Answer, error) {
	history, err := o.memory.History(ctx, sessionID)
	if err != nil {
		history = nil
	}
	messages := append(history, schema.UserMessage(question))

	resp, err := o.agent.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("agent generate: %w", err)
	}

	answer := classifyAgentOutput(resp.Content)
	o.remember(ctx, sessionID, question, answer)
	return answer, nil
}

// classifyAgentOutput detects a base64 PNG coming back through the
// agent's text channel. The dispatch pipelines never need this; the
// react loop's tools only speak strings.
func classifyAgentOutput(content string) *models.Answer {
	trimmed := strings.TrimSpace(content)
	if png, err := base64.StdEncoding.DecodeString(trimmed); err == nil && looksLikePNG(png) {
		return models.ImageAnswer(png, trimmed)
	}
	return models.TextAnswer(content)
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func looksLikePNG(data []byte) bool {
	if len(data) < len(pngSignature) {
		return false
	}
	for i, b := range pngSignature {
		if data[i] != b {
			return false
		}
	}
	return true
}

// sqlAnswer runs the SQL pipeline: enumerate tables, fetch schema,
// synthesize a query, validate it, execute, and narrate the rows. Query
// generation and execution retry up to the configured ceiling; the
// destructive-statement guard sits before every execution.
func (o *Orchestrator) sqlAnswer(ctx context.Context, question string, history []*schema.Message) (string, error) {
	tables, err := o.sqlTools.ListTables(ctx)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return MsgNoRows, nil
	}
	schemaText, err := o.sqlTools.TableSchema(ctx, tables)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		query, err := o.generateQuery(ctx, question, schemaText, history, lastErr)
		if err != nil {
			return "", err
		}
		if err := validateReadOnly(query); err != nil {
			logx.Warn().Err(err).Int("attempt", attempt+1).Msg("generated query rejected")
			lastErr = err
			continue
		}

		if checked, err := o.checkQuery(ctx, query, schemaText); err == nil {
			if validateReadOnly(checked) == nil {
				query = checked
			}
		}

		result, err := o.sqlTools.RunQuery(ctx, query)
		if err != nil {
			logx.Warn().Err(err).Int("attempt", attempt+1).Str("query", query).Msg("query execution failed")
			lastErr = err
			continue
		}
		if len(result.Rows) == 0 {
			return MsgNoRows, nil
		}
		return o.narrateResult(ctx, question, result, history)
	}
	return MsgQueryExhausted, nil
}

func (o *Orchestrator) generateQuery(ctx context.Context, question, schemaText string, history []*schema.Message, lastErr error) (string, error) {
	prompt := generateQueryPrompt + "\n\nSchema:\n" + schemaText
	if lastErr != nil {
		prompt += "\n\nThe previous attempt failed with: " + lastErr.Error() + "\nFix the problem."
	}
	messages := []*schema.Message{schema.SystemMessage(prompt)}
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))

	resp, err := o.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate query: %w", err)
	}
	return stripFences(resp.Content), nil
}

func (o *Orchestrator) checkQuery(ctx context.Context, query, schemaText string) (string, error) {
	resp, err := o.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(checkQueryPrompt + "\n\nSchema:\n" + schemaText),
		schema.UserMessage(query),
	})
	if err != nil {
		return "", fmt.Errorf("check query: %w", err)
	}
	checked := stripFences(resp.Content)
	if checked == "" {
		return query, nil
	}
	return checked, nil
}

func (o *Orchestrator) narrateResult(ctx context.Context, question string, result *queryResult, history []*schema.Message) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(narrateResultPrompt + "\n\nQuery result:\n" + result.Render()),
	}
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))

	resp, err := o.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("narrate result: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ragAnswer retrieves document context and synthesizes a grounded
// answer. Without usable context it refuses rather than letting the
// model fabricate one.
func (o *Orchestrator) ragAnswer(ctx context.Context, question string, history []*schema.Message) (string, error) {
	if o.retriever == nil {
		return MsgNoContext, nil
	}
	docs, err := o.retriever.Query(ctx, question)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return MsgNoContext, nil
	}

	var contextText strings.Builder
	for _, doc := range docs {
		contextText.WriteString(doc.Content)
		contextText.WriteString("\n")
	}
	messages := []*schema.Message{
		schema.SystemMessage(ragAnswerPrompt + "\n\nContext:\n" + contextText.String()),
	}
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))

	resp, err := o.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("grounded answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

type chartSpec struct {
	Query     string `json:"query"`
	ChartType string `json:"chart_type"`
}

// chartAnswer confirms the schema, has the model emit a {query,
// chart_type} spec, and renders it. The raw tool output is the final
// answer; nothing narrates on top of an image.
func (o *Orchestrator) chartAnswer(ctx context.Context, question string) (*models.Answer, error) {
	tables, err := o.sqlTools.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	schemaText := ""
	if len(tables) > 0 {
		schemaText, err = o.sqlTools.TableSchema(ctx, tables)
		if err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		spec, err := o.generateChartSpec(ctx, question, schemaText, lastErr)
		if err != nil {
			return nil, err
		}
		kind := chart.Kind(strings.ToLower(strings.TrimSpace(spec.ChartType)))
		if kind != chart.KindHistogram && kind != chart.KindPie && kind != chart.KindBar {
			lastErr = fmt.Errorf("unknown chart type %q", spec.ChartType)
			continue
		}
		if err := validateReadOnly(spec.Query); err != nil {
			lastErr = err
			continue
		}

		result := o.chart.Generate(ctx, spec.Query, kind)
		if result.IsImage() {
			return models.ImageAnswer(result.PNG, base64.StdEncoding.EncodeToString(result.PNG)), nil
		}
		return models.TextAnswer(result.Message), nil
	}
	return models.TextAnswer(MsgQueryExhausted), nil
}

func (o *Orchestrator) generateChartSpec(ctx context.Context, question, schemaText string, lastErr error) (*chartSpec, error) {
	prompt := chartSpecPrompt + "\n\nSchema:\n" + schemaText
	if lastErr != nil {
		prompt += "\n\nThe previous attempt failed with: " + lastErr.Error() + "\nFix the problem."
	}
	resp, err := o.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(prompt),
		schema.UserMessage(question),
	})
	if err != nil {
		return nil, fmt.Errorf("generate chart spec: %w", err)
	}

	var spec chartSpec
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &spec); err != nil {
		return &chartSpec{}, nil
	}
	return &spec, nil
}

// stripFences removes a surrounding markdown code fence if the model
// added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line
		if lang := strings.TrimSpace(s[:idx]); lang == "" || len(lang) <= 10 && !strings.ContainsAny(lang, " ;") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
