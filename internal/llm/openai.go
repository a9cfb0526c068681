package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
)

// OpenAI generates answers through the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a generator for the given OpenAI chat model. The API
// key is read from OPENAI_API_KEY.
func NewOpenAI(model string) (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	client := openai.NewClient()
	return &OpenAI{client: &client, model: model}, nil
}

// Model returns the configured OpenAI chat model name.
func (o *OpenAI) Model() string { return o.model }

// Generate invokes the chat completions API with the prompt as a single
// user message and returns the first choice's content.
func (o *OpenAI) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(float64(temperature)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
