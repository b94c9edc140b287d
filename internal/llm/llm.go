package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/anspn/iota-service/internal/models"
)

// Client wraps the Anthropic API for transcript summarization.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for session summarization.
func buildPrompt(sess *models.Session) (system string, user string) {
	system = `You summarize recorded terminal sessions. Given a session's metadata and its ordered command list, return a plain-text summary with:

- One opening sentence saying what the session appears to have been about
- A short bullet list of the notable activities, in the order they happened
- A closing note flagging anything unusual (destructive commands, credential handling, repeated failures)

Rules:
- Work only from the commands given; never invent activity that is not in the transcript
- Group repeated variations of the same command into one bullet
- Keep the whole summary under 200 words
- Return plain text only, no markdown fencing`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s\n", sess.ID)
	fmt.Fprintf(&sb, "Identity: %s\n", sess.Identity)
	fmt.Fprintf(&sb, "Owner: %s\n", sess.Owner)
	fmt.Fprintf(&sb, "Status: %s\n", sess.Status)
	fmt.Fprintf(&sb, "Commands (%d):\n", len(sess.Commands))
	for i, cmd := range sess.Commands {
		if cmd.Timestamp != nil {
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, cmd.Timestamp.UTC().Format("15:04:05"), cmd.Command)
		} else {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, cmd.Command)
		}
	}
	user = sb.String()
	return
}

// Summarize sends a finalized session's transcript to the LLM and returns a
// plain-text summary. The summary is advisory output only; it never feeds
// back into the session record or its digest.
func (c *Client) Summarize(ctx context.Context, sess *models.Session) (string, error) {
	if len(sess.Commands) == 0 {
		return "", fmt.Errorf("session %s has no recorded commands to summarize", sess.ID)
	}

	systemPrompt, userPrompt := buildPrompt(sess)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return strings.TrimSpace(text), nil
}
