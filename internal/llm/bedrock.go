// Package llm invokes Bedrock foundation models with provider-specific
// payloads and normalizes their responses.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

const AnthropicVersion = "bedrock-2023-05-31"

var ErrUnsupportedProvider = errors.New("unsupported model provider")

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderTitan     Provider = "titan"
	ProviderNova      Provider = "nova"
)

// ProviderFor maps a model id (or inference profile id such as
// us.amazon.nova-micro-v1:0) to its payload family.
func ProviderFor(modelID string) (Provider, error) {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "anthropic"):
		return ProviderAnthropic, nil
	case strings.Contains(id, "amazon.nova"):
		return ProviderNova, nil
	case strings.Contains(id, "amazon"):
		return ProviderTitan, nil
	}
	return "", fmt.Errorf("%w for %s", ErrUnsupportedProvider, modelID)
}

type Request struct {
	ModelID     string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Completion struct {
	ModelID string        `json:"model_id"`
	Text    string        `json:"text"`
	Usage   Usage         `json:"usage"`
	Latency time.Duration `json:"latency_ns"`
}

// Invoker is the model call surface shared by routing, claims and support.
type Invoker interface {
	Invoke(ctx context.Context, r Request) (Completion, error)
}

type Bedrock struct {
	client BedrockClient
	now    func() time.Time
}

func NewBedrock(c BedrockClient) *Bedrock {
	return &Bedrock{client: c, now: time.Now}
}

func (b *Bedrock) Invoke(ctx context.Context, r Request) (Completion, error) {
	p, err := ProviderFor(r.ModelID)
	if err != nil {
		return Completion{}, err
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = 500
	}
	if r.TopP == 0 {
		r.TopP = 0.9
	}

	body, err := json.Marshal(Payload(p, r))
	if err != nil {
		return Completion{}, fmt.Errorf("marshal %s payload: %w", p, err)
	}

	start := b.now()
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(r.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("bedrock InvokeModel %s: %w", r.ModelID, err)
	}

	c, err := ParseResponse(p, out.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("%s response: %w", r.ModelID, err)
	}
	c.ModelID = r.ModelID
	c.Latency = b.now().Sub(start)
	return c, nil
}

// Payload builds the InvokeModel body for a provider.
func Payload(p Provider, r Request) map[string]any {
	switch p {
	case ProviderAnthropic:
		m := map[string]any{
			"anthropic_version": AnthropicVersion,
			"max_tokens":        r.MaxTokens,
			"temperature":       r.Temperature,
			"top_p":             r.TopP,
			"messages": []map[string]any{{
				"role":    "user",
				"content": []map[string]any{{"type": "text", "text": r.Prompt}},
			}},
		}
		if r.System != "" {
			m["system"] = r.System
		}
		return m
	case ProviderNova:
		m := map[string]any{
			"messages": []map[string]any{{
				"role":    "user",
				"content": []map[string]any{{"text": r.Prompt}},
			}},
			"inferenceConfig": map[string]any{
				"maxTokens":   r.MaxTokens,
				"temperature": r.Temperature,
				"topP":        r.TopP,
			},
		}
		if r.System != "" {
			m["system"] = []map[string]any{{"text": r.System}}
		}
		return m
	default:
		text := r.Prompt
		if r.System != "" {
			text = r.System + "\n\n" + r.Prompt
		}
		return map[string]any{
			"inputText": text,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": r.MaxTokens,
				"temperature":   r.Temperature,
				"topP":          r.TopP,
			},
		}
	}
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type titanResponse struct {
	InputTextTokenCount int `json:"inputTextTokenCount"`
	Results             []struct {
		TokenCount int    `json:"tokenCount"`
		OutputText string `json:"outputText"`
	} `json:"results"`
}

type novaResponse struct {
	Output struct {
		Message struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
	} `json:"usage"`
}

// ParseResponse extracts the generated text and token usage.
func ParseResponse(p Provider, body []byte) (Completion, error) {
	var c Completion
	switch p {
	case ProviderAnthropic:
		var raw anthropicResponse
		if err := json.Unmarshal(body, &raw); err != nil {
			return c, fmt.Errorf("unmarshal: %w", err)
		}
		var sb strings.Builder
		for _, part := range raw.Content {
			if part.Type == "" || part.Type == "text" {
				sb.WriteString(part.Text)
			}
		}
		c.Text = sb.String()
		c.Usage = Usage{InputTokens: raw.Usage.InputTokens, OutputTokens: raw.Usage.OutputTokens}
	case ProviderNova:
		var raw novaResponse
		if err := json.Unmarshal(body, &raw); err != nil {
			return c, fmt.Errorf("unmarshal: %w", err)
		}
		if len(raw.Output.Message.Content) == 0 {
			return c, fmt.Errorf("empty output message")
		}
		c.Text = raw.Output.Message.Content[0].Text
		c.Usage = Usage{InputTokens: raw.Usage.InputTokens, OutputTokens: raw.Usage.OutputTokens}
	case ProviderTitan:
		var raw titanResponse
		if err := json.Unmarshal(body, &raw); err != nil {
			return c, fmt.Errorf("unmarshal: %w", err)
		}
		if len(raw.Results) == 0 {
			return c, fmt.Errorf("no results")
		}
		c.Text = raw.Results[0].OutputText
		c.Usage = Usage{InputTokens: raw.InputTextTokenCount, OutputTokens: raw.Results[0].TokenCount}
	default:
		return c, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
	}
	c.Text = strings.TrimSpace(c.Text)
	return c, nil
}
