package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/longregen/promptc/internal/adapters/metrics"
	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/internal/prompt"
)

// Client adapts an OpenAI-compatible chat completions API to the generation
// and proposal interfaces of the prompt package.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
}

// ClientConfig configures the chat completions client
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// NewClient creates a chat completions client
func NewClient(cfg ClientConfig) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Generate runs one module execution: instruction and demonstrations go into
// the system message, input values into the user message, and the model is
// asked for a JSON object carrying exactly the declared output fields.
func (c *Client) Generate(ctx context.Context, req prompt.GenerateRequest) (prompt.Values, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(buildSystemPrompt(req)),
	}
	for _, demo := range req.Demos {
		messages = append(messages,
			openai.UserMessage(renderValues(req.Signature.InputNames(), demo.Inputs)),
			openai.AssistantMessage(renderJSON(req.Signature.OutputNames(), demo.Outputs)),
		)
	}
	messages = append(messages, openai.UserMessage(renderValues(req.Signature.InputNames(), req.Inputs)))

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	})
	metrics.GenerationDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "chat completion returned no choices")
	}

	return parseOutputs(resp.Choices[0].Message.Content, req.Signature.OutputNames())
}

// ProposeInstruction asks the model for a rewritten instruction, conditioned
// on the current one and the scored history.
func (c *Client) ProposeInstruction(ctx context.Context, req prompt.ProposalRequest) (string, error) {
	var b strings.Builder
	b.WriteString("You improve instructions for a structured generation step.\n")
	fmt.Fprintf(&b, "The step reads the fields %s and must produce the fields %s.\n",
		strings.Join(req.Signature.InputNames(), ", "),
		strings.Join(req.Signature.OutputNames(), ", "))
	b.WriteString("Respond with the improved instruction text only, no preamble.")

	var u strings.Builder
	fmt.Fprintf(&u, "Current instruction:\n%s\n", req.Current)
	if len(req.History) > 0 {
		u.WriteString("\nPreviously tried instructions and their scores:\n")
		for _, h := range req.History {
			fmt.Fprintf(&u, "- [%.3f] %s\n", h.Score, h.Instruction)
		}
	}
	u.WriteString("\nWrite a better instruction.")

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(b.String()),
			openai.UserMessage(u.String()),
		},
		Temperature: openai.Float(c.temperature),
	})
	metrics.GenerationDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("instruction proposal: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewDomainError(domain.ErrEmptyContent, "instruction proposal returned no choices")
	}

	proposed := strings.TrimSpace(resp.Choices[0].Message.Content)
	if proposed == "" {
		return "", domain.NewDomainError(domain.ErrEmptyContent, "instruction proposal returned empty text")
	}
	return proposed, nil
}

func buildSystemPrompt(req prompt.GenerateRequest) string {
	var b strings.Builder
	if req.Instruction != "" {
		b.WriteString(req.Instruction)
		b.WriteString("\n\n")
	}
	if req.Signature.Description != "" {
		b.WriteString(req.Signature.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("Input fields:\n")
	for _, f := range req.Signature.Inputs {
		writeField(&b, f)
	}
	b.WriteString("Output fields:\n")
	for _, f := range req.Signature.Outputs {
		writeField(&b, f)
	}
	fmt.Fprintf(&b, "\nRespond with a single JSON object containing exactly the keys: %s.",
		strings.Join(req.Signature.OutputNames(), ", "))
	return b.String()
}

func writeField(b *strings.Builder, f prompt.Field) {
	if f.Description != "" {
		fmt.Fprintf(b, "- %s: %s\n", f.Name, f.Description)
	} else {
		fmt.Fprintf(b, "- %s\n", f.Name)
	}
}

func renderValues(names []string, values prompt.Values) string {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, values.String(name))
	}
	return b.String()
}

func renderJSON(names []string, values prompt.Values) string {
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = values[name]
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parseOutputs extracts the declared output fields from the model's reply.
// Accepts a bare JSON object or one wrapped in a fenced code block.
func parseOutputs(content string, outputNames []string) (prompt.Values, error) {
	raw := extractJSON(content)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.NewDomainError(domain.ErrIncompleteGeneration,
			fmt.Sprintf("model reply is not a JSON object: %v", err))
	}

	out := make(prompt.Values, len(outputNames))
	for _, name := range outputNames {
		v, ok := parsed[name]
		if !ok || v == nil {
			return nil, domain.NewDomainError(domain.ErrIncompleteGeneration,
				fmt.Sprintf("model reply is missing output field %q", name))
		}
		out[name] = v
	}
	return out, nil
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}
	// Trim any prose around the outermost object.
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
