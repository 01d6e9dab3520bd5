package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const titlePrompt = "You are a conversation title generator. " +
	"Based on the dialogue between the user and the assistant, generate a concise and accurate title for the conversation. " +
	"The title should be at most ten words and summarize the main topic. " +
	"Output only the title; do not include any additional content."

// Titler names sessions after their first exchange so listings show
// something better than the placeholder.
type Titler struct {
	chatModel model.BaseChatModel
}

func NewTitler(chatModel model.BaseChatModel) *Titler {
	return &Titler{chatModel: chatModel}
}

func (t *Titler) GenerateTitle(ctx context.Context, question, answer string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "New Conversation", nil
	}
	conversation := fmt.Sprintf("User: %s\nAssistant: %s\n", question, answer)
	resp, err := t.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(titlePrompt),
		schema.UserMessage("Please generate a clean title for the following conversation:\n\n" + conversation),
	})
	if err != nil {
		return "", fmt.Errorf("generate title failed: %w", err)
	}
	title := strings.TrimSpace(strings.Trim(resp.Content, `"`))
	if title == "" {
		return "New Conversation", nil
	}
	return title, nil
}

// TitleSessionIfNew replaces the placeholder title with a generated
// one. Sessions that already have a real title are left alone.
func (s *Service) TitleSessionIfNew(ctx context.Context, titler *Titler, sessionID, question, answer string) error {
	if titler == nil {
		return nil
	}
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Title != placeholderTitle {
		return nil
	}
	title, err := titler.GenerateTitle(ctx, question, answer)
	if err != nil {
		return err
	}
	return s.UpdateSessionTitle(ctx, sessionID, title)
}
