// Package llm turns extracted course material into structured courses with
// a chat-completion model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/models"
)

const systemPrompt = "Tu es un expert en pédagogie et structure de contenu éducatif."

var ErrNoAPIKey = errors.New("no API key configured for course generation")

var (
	questionSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"choices": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"answer": map[string]any{"type": "string"},
		},
		"required":             []string{"question", "choices", "answer"},
		"additionalProperties": false,
	}

	glossarySchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"term":       map[string]any{"type": "string"},
			"definition": map[string]any{"type": "string"},
		},
		"required":             []string{"term", "definition"},
		"additionalProperties": false,
	}

	flashcardSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"front": map[string]any{"type": "string"},
			"back":  map[string]any{"type": "string"},
		},
		"required":             []string{"front", "back"},
		"additionalProperties": false,
	}
)

// courseSchema builds the strict response schema. Study aid arrays are only
// part of it when they were asked for.
func courseSchema(studyAids bool) map[string]any {
	properties := map[string]any{
		"section": map[string]any{"type": "string"},
		"summary": map[string]any{"type": "string"},
		"related_elements": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	}
	required := []string{"section", "summary", "related_elements"}
	if studyAids {
		properties["qcm"] = map[string]any{"type": "array", "items": questionSchema}
		properties["glossary"] = map[string]any{"type": "array", "items": glossarySchema}
		properties["flashcards"] = map[string]any{"type": "array", "items": flashcardSchema}
		required = append(required, "qcm", "glossary", "flashcards")
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"properties":           properties,
					"required":             required,
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"sections"},
		"additionalProperties": false,
	}
}

type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	// StructuredOutput requests a strict JSON-schema response. Some
	// OpenAI-compatible endpoints reject it, so it can be turned off.
	StructuredOutput bool
}

// CourseRequest is the material a course is generated from.
type CourseRequest struct {
	DocumentID string
	Content    string
	// Elements are the asset file names the model may cite in
	// related_elements.
	Elements  []string
	StudyAids bool
}

type CourseGenerator struct {
	client openai.Client
	cfg    GeneratorConfig
	log    logger.Logger
}

// NewCourseGenerator builds a generator. Extra request options are appended
// after the ones derived from cfg.
func NewCourseGenerator(cfg GeneratorConfig, log logger.Logger, opts ...option.RequestOption) (*CourseGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		return nil, errors.New("no model configured for course generation")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &CourseGenerator{
		client: openai.NewClient(clientOpts...),
		cfg:    cfg,
		log:    log,
	}, nil
}

func (g *CourseGenerator) Model() string {
	return g.cfg.Model
}

// Generate asks the model for a course. When the answer cannot be parsed the
// returned course still carries the raw answer, alongside an error wrapping
// ErrUnparseableCourse.
func (g *CourseGenerator) Generate(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("no content to generate a course from")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		Temperature: openai.Float(g.cfg.Temperature),
		TopP:        openai.Float(g.cfg.TopP),
	}
	if g.cfg.StructuredOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "course",
					Schema: courseSchema(req.StudyAids),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	g.log.Info("Generating course for %s with %s (%d chars)", req.DocumentID, g.cfg.Model, len(req.Content))

	raw, err := RateLimitedCall(ctx, EstimateTokens(req.Content), g.log, func(ctx context.Context) (string, error) {
		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("completion returned no choices")
		}
		return completion.Choices[0].Message.Content, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate course: %w", err)
	}

	course := &models.Course{
		DocumentID: req.DocumentID,
		Model:      g.cfg.Model,
		Raw:        raw,
		CreatedAt:  time.Now().UTC(),
	}

	sections, err := ParseSections(raw)
	if err != nil {
		g.log.Warn("Course output for %s could not be parsed: %v", req.DocumentID, err)
		return course, err
	}
	if !req.StudyAids {
		for i := range sections {
			sections[i].QCM = nil
			sections[i].Glossary = nil
			sections[i].Flashcards = nil
		}
	}
	course.Sections = sections
	g.log.Info("Generated %d sections for %s", len(sections), req.DocumentID)
	return course, nil
}

func buildPrompt(req CourseRequest) string {
	var b strings.Builder
	b.WriteString("Tu es un assistant pédagogique intelligent. Voici le contenu d'un cours en PDF :\n\n")
	b.WriteString(req.Content)
	b.WriteString("\n\n")

	if len(req.Elements) > 0 {
		b.WriteString("Éléments extraits du document (images, tableaux, équations) : ")
		b.WriteString(strings.Join(req.Elements, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString("Découpe ce document en : Introduction, Notion 1, Notion 2, ..., Conclusion.\n")
	b.WriteString("Pour chaque section :\n")
	b.WriteString("- Donne un titre\n")
	b.WriteString("- Résume en 3 à 5 lignes avec les explications essentielles des notions et des formules en gardant les formules\n")
	b.WriteString("- Identifie si des images, tableaux ou équations y sont liées\n")
	if req.StudyAids {
		b.WriteString("- Génère des QCM (QCU si applicable), un glossaire et des flashcards associés à chaque section\n")
	}
	b.WriteString("- Structure bien la réponse en JSON comme suit :\n")
	if req.StudyAids {
		b.WriteString(`[
  {
    "section": "Introduction",
    "summary": "...",
    "related_elements": ["image_page1_1.png", "table_page1_1.csv"],
    "qcm": [{"question": "...", "choices": ["A", "B", "C"], "answer": "A"}],
    "glossary": [{"term": "mot", "definition": "..."}],
    "flashcards": [{"front": "...", "back": "..."}]
  },
  ...
]`)
	} else {
		b.WriteString(`[
  {
    "section": "Introduction",
    "summary": "...",
    "related_elements": ["image_page1_1.png"]
  },
  {
    "section": "Notion 1",
    "summary": "...",
    "related_elements": ["image_page2_1.png", "table_page1_1.csv"]
  },
  {
    "section": "Conclusion",
    "summary": "...",
    "related_elements": []
  }
]`)
	}
	b.WriteString("\n")
	return b.String()
}
