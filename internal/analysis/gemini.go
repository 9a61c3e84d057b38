package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Default model and voice settings.
const (
	DefaultModel       = "gemini-3-flash-preview"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice       = "Kore"
	DefaultTimeout     = 30 * time.Second
)

const systemInstruction = `You are the CORE AI of a futuristic fusion reactor.
Analyze the user's input as if it were a high-energy material injected into the core.
Return your analysis in a structured JSON format.
- summary: A brief technical summary of the reaction.
- analysis: 3 key technical insights or "isotopes" extracted.
- threatLevel: Low, Medium, High, or Critical based on the input's intensity or complexity.
- efficiency: A number between 0 and 100 representing the data density.`

// contentGenerator is the subset of *genai.Models used here, so tests can
// substitute a fake.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig selects models and limits for GeminiClient.
type GeminiConfig struct {
	APIKey      string
	Model       string
	SpeechModel string
	Voice       string
	Timeout     time.Duration
}

func (c *GeminiConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// GeminiClient implements Analyzer and Speaker against the Gemini API.
type GeminiClient struct {
	models contentGenerator
	cfg    GeminiConfig
}

// NewGeminiClient creates a client for the Gemini developer API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key required")
	}
	cfg.applyDefaults()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{models: client.Models, cfg: cfg}, nil
}

func newGeminiClientWith(models contentGenerator, cfg GeminiConfig) *GeminiClient {
	cfg.applyDefaults()
	return &GeminiClient{models: models, cfg: cfg}
}

func reactionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":     {Type: genai.TypeString},
			"analysis":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"threatLevel": {Type: genai.TypeString},
			"efficiency":  {Type: genai.TypeNumber},
		},
		Required: []string{"summary", "analysis", "threatLevel", "efficiency"},
	}
}

// Analyze sends input through the reactor prompt and parses the JSON reply.
func (c *GeminiClient) Analyze(ctx context.Context, input string) (ReactionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.models.GenerateContent(ctx, c.cfg.Model,
		genai.Text("Process the following input through the Reactor logic. Input: "+input),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    reactionSchema(),
		})
	if err != nil {
		return ReactionResult{}, fmt.Errorf("generate analysis: %w", err)
	}
	if resp == nil {
		return ReactionResult{}, fmt.Errorf("%w: empty response", ErrMalformedResult)
	}
	return ParseResult([]byte(resp.Text()))
}

// Speak voices text and returns the raw PCM payload of the first candidate.
func (c *GeminiClient) Speak(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.models.GenerateContent(ctx, c.cfg.SpeechModel,
		genai.Text("System Status Notification: "+text),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}
	return inlineAudio(resp)
}

func inlineAudio(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoAudio
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil, ErrNoAudio
	}
	for _, part := range cand.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, ErrNoAudio
}
