package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/querysmith/querysmith/internal/config"
)

// ErrGenerationFailed is the single error kind for any remote model failure:
// transport errors, quota errors, and empty or unusable responses all wrap it.
var ErrGenerationFailed = errors.New("generation failed")

// Verdict is the validation stage's constrained output. The model is asked
// for this exact JSON shape instead of free text, so classification does not
// depend on keyword matching.
type Verdict struct {
	MatchesIntent bool     `json:"matches_intent"`
	Issues        []string `json:"issues"`
	SuggestedFix  string   `json:"suggested_fix"`
	Explanation   string   `json:"explanation"`
}

// TextGenerator is the model surface the pipeline depends on. LLMService is
// the production implementation; tests substitute deterministic stubs.
type TextGenerator interface {
	GenerateText(systemInstruction, prompt string) (string, error)
	GenerateVerdict(systemInstruction, prompt string) (*Verdict, error)
}

var _ TextGenerator = &LLMService{}

type LLMService struct {
	client *genai.Client
	model  string
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &LLMService{
		client: client,
		model:  config.AppConfig.GeminiModel,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// GenerateText performs one blocking model call and returns the raw text.
// No retry, no streaming.
func (s *LLMService) GenerateText(systemInstruction, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	return s.generate(model, prompt)
}

// GenerateVerdict performs one blocking model call with a JSON response
// schema as the response-shape hint, and parses the result into a Verdict.
func (s *LLMService) GenerateVerdict(systemInstruction, prompt string) (*Verdict, error) {
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   verdictSchema,
	}

	text, err := s.generate(model, prompt)
	if err != nil {
		return nil, err
	}
	return parseVerdict(text), nil
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"matches_intent": {Type: genai.TypeBoolean},
		"issues":         {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"suggested_fix":  {Type: genai.TypeString},
		"explanation":    {Type: genai.TypeString},
	},
	Required: []string{"matches_intent", "issues", "explanation"},
}

func (s *LLMService) generate(model *genai.GenerativeModel, prompt string) (string, error) {
	ctx := context.Background()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", ErrGenerationFailed, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned an empty response", ErrGenerationFailed)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		return "", fmt.Errorf("%w: gemini returned no text parts", ErrGenerationFailed)
	}

	return responseText.String(), nil
}

// parseVerdict decodes the validator's JSON. Models occasionally wrap the
// object in fences or prose despite the MIME hint, so the first {...} region
// is extracted before decoding. Unparseable output degrades to a
// needs-refinement verdict rather than failing the run.
func parseVerdict(text string) *Verdict {
	raw := extractJSONObject(text)

	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		log.Printf("Failed to parse validation response, treating as needs-refinement: %v", err)
		return &Verdict{
			MatchesIntent: false,
			Issues:        []string{"failed to parse validation response"},
			Explanation:   "The validator did not produce a usable response. Please review the SQL manually.",
		}
	}
	return &verdict
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
