package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash-lite"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.075
	geminiOutputPricePerMillion = 0.30
)

// GeminiProvider implements Provider on top of the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider. It uses the
// GEMINI_API_KEY environment variable for authentication.
func NewGeminiProvider(ctx context.Context) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: geminiModel}, nil
}

// Availability implements Provider. The Gemini API has no download phase;
// it is ready whenever a client exists.
func (g *GeminiProvider) Availability() Availability {
	if g == nil || g.client == nil {
		return Unavailable
	}
	return Ready
}

// NewSession implements Provider.
func (g *GeminiProvider) NewSession(opts SessionOptions) (Session, error) {
	if g.Availability() != Ready {
		return nil, fmt.Errorf("gemini capability not ready")
	}
	return &geminiSession{provider: g, opts: opts}, nil
}

type geminiSession struct {
	provider *GeminiProvider
	opts     SessionOptions
}

func (s *geminiSession) Prompt(ctx context.Context, text string, image []byte) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("session already destroyed")
	}

	parts := []*genai.Part{genai.NewPartFromText(text)}
	if len(image) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: image, MIMEType: "image/jpeg"},
		})
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.opts.Temperature),
	}
	if s.opts.TopK > 0 {
		config.TopK = genai.Ptr(float32(s.opts.TopK))
	}

	result, err := s.provider.client.Models.GenerateContent(ctx, s.provider.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	if result.UsageMetadata != nil {
		inputTokens := int64(result.UsageMetadata.PromptTokenCount)
		outputTokens := int64(result.UsageMetadata.CandidatesTokenCount)
		log.Info().
			Str("model", s.provider.model).
			Bool("withImage", len(image) > 0).
			Int64("inputTokens", inputTokens).
			Int64("outputTokens", outputTokens).
			Float64("costUSD", calculateGeminiCost(inputTokens, outputTokens)).
			Msg("classification llm call")
	}

	return CleanResponse(result.Text()), nil
}

// Destroy implements Session. Gemini sessions are stateless HTTP
// exchanges, so destroying only severs the provider reference, but the
// contract keeps call sites honest for providers that do hold resources.
func (s *geminiSession) Destroy() {
	s.provider = nil
}

func calculateGeminiCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * geminiInputPricePerMillion
	outputCost := float64(outputTokens) / 1_000_000 * geminiOutputPricePerMillion
	return inputCost + outputCost
}

// CleanResponse strips markdown code fences the model occasionally wraps
// around constrained-grammar answers.
func CleanResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
