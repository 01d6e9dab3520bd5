package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Intent is the discrete category the router dispatches on.
type Intent string

const (
	IntentSQL   Intent = "sql"
	IntentDocs  Intent = "docs"
	IntentChart Intent = "chart"
	IntentNone  Intent = "none"
)

var chartPattern = regexp.MustCompile(`(?i)\b(chart|plot|graph|histogram|pie|visuali[sz]e)\b`)

// classify maps a question onto an intent. Chart requests are caught by
// keyword first; everything else goes through one constrained model call.
func (o *Orchestrator) classify(ctx context.Context, question string) (Intent, error) {
	if chartPattern.MatchString(question) {
		return IntentChart, nil
	}

	resp, err := o.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(classifyPrompt),
		schema.UserMessage(question),
	})
	if err != nil {
		return IntentNone, fmt.Errorf("classify question: %w", err)
	}
	return parseIntent(resp.Content), nil
}

// parseIntent reads the first recognizable tag out of a model reply.
// Anything unrecognized is treated as unsupported.
func parseIntent(reply string) Intent {
	fields := strings.Fields(strings.ToLower(reply))
	if len(fields) == 0 {
		return IntentNone
	}
	switch strings.Trim(fields[0], ".,:;\"'`") {
	case "sql":
		return IntentSQL
	case "docs", "rag", "documents":
		return IntentDocs
	case "chart":
		return IntentChart
	default:
		return IntentNone
	}
}
