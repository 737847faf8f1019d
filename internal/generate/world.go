package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/metrics"
)

// Generated-by labels reported alongside a generated world.
const (
	WorldSourceAI       = "ai"
	WorldSourceTemplate = "template"
)

// WorldRequest describes one keyword-driven world to generate.
type WorldRequest struct {
	Keywords           string
	GenerateCharacters bool
	CharacterCount     int
}

// GeneratedCharacter is one member of a generated world's roster.
type GeneratedCharacter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Background  string `json:"background"`
}

// GeneratedWorld is the output of keyword-driven world generation.
type GeneratedWorld struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Background  string               `json:"background"`
	GeneratedBy string               `json:"generated_by"`
	Characters  []GeneratedCharacter `json:"characters,omitempty"`
}

// WorldProgressFunc receives staged progress while a world is generated.
type WorldProgressFunc func(message string, pct int)

// WorldGenerator builds a world and optional character roster from
// free-form keywords, through the OpenAI completion API when
// configured and deterministic templates otherwise. Template output
// never fails, so world generation always terminates with a result.
type WorldGenerator struct {
	client *openai.Client
	logger *logger.Logger
}

// NewWorldGenerator creates the world generator. With an empty API key
// every request takes the template path.
func NewWorldGenerator(openaiKey string, log *logger.Logger) *WorldGenerator {
	g := &WorldGenerator{logger: log}
	if openaiKey != "" {
		g.client = openai.NewClient(openaiKey)
	}
	return g
}

// Generate produces a world for the request, reporting staged progress
// through report (which may be nil). AI failures degrade to template
// output rather than surfacing an error.
func (g *WorldGenerator) Generate(ctx context.Context, req *WorldRequest, report WorldProgressFunc) *GeneratedWorld {
	if report == nil {
		report = func(string, int) {}
	}
	count := req.CharacterCount
	if count <= 0 {
		count = 3
	}

	report("starting generation", 10)

	if g.client == nil {
		metrics.RecordWorldGeneration(WorldSourceTemplate)
		return g.templateWorld(req, count, report)
	}

	report("generating world with AI", 30)
	world, err := g.aiWorld(ctx, req.Keywords)
	if err != nil {
		g.logger.Warn("AI world generation failed, using template",
			zap.String("keywords", req.Keywords), zap.Error(err))
		metrics.RecordWorldGeneration(WorldSourceTemplate)
		return g.templateWorld(req, count, report)
	}

	if req.GenerateCharacters {
		report("generating characters with AI", 70)
		chars, err := g.aiCharacters(ctx, req.Keywords, world, count)
		if err != nil {
			g.logger.Warn("AI character generation failed, using template roster",
				zap.String("keywords", req.Keywords), zap.Error(err))
			chars = templateCharacters(req.Keywords, count)
		}
		world.Characters = chars
	}

	report("generation complete", 100)
	metrics.RecordWorldGeneration(WorldSourceAI)
	return world
}

func (g *WorldGenerator) templateWorld(req *WorldRequest, count int, report WorldProgressFunc) *GeneratedWorld {
	report("generating world from templates", 40)
	tpl := worldTemplates[keywordHash(req.Keywords)%uint32(len(worldTemplates))]
	world := &GeneratedWorld{
		Name:        expand(tpl.name, req.Keywords),
		Description: expand(tpl.description, req.Keywords),
		Background:  expand(tpl.background, req.Keywords),
		GeneratedBy: WorldSourceTemplate,
	}

	if req.GenerateCharacters {
		report("generating characters from templates", 80)
		world.Characters = templateCharacters(req.Keywords, count)
	}

	report("generation complete", 100)
	return world
}

func (g *WorldGenerator) aiWorld(ctx context.Context, keywords string) (*GeneratedWorld, error) {
	prompt := fmt.Sprintf(`Create a fictional world from these keywords: %s

Respond with JSON in exactly this shape:
{
  "name": "world name",
  "description": "one or two sentence summary",
  "background": "detailed setting in three to five sentences covering history, culture and defining traits"
}

Make the world imaginative and distinctive.`, keywords)

	content, err := g.complete(ctx, worldBuilderSystemPrompt, prompt, 500)
	if err != nil {
		return nil, err
	}

	world := &GeneratedWorld{GeneratedBy: WorldSourceAI}
	if err := json.Unmarshal([]byte(content), world); err != nil {
		// Not JSON after all; keep the raw text as the background.
		world.Name = keywords + " World"
		world.Description = fmt.Sprintf("A world themed around %s.", keywords)
		world.Background = strings.TrimSpace(strings.ReplaceAll(content, `"`, ""))
	}
	world.GeneratedBy = WorldSourceAI
	if world.Name == "" {
		world.Name = keywords + " World"
	}
	return world, nil
}

func (g *WorldGenerator) aiCharacters(ctx context.Context, keywords string, world *GeneratedWorld, count int) ([]GeneratedCharacter, error) {
	prompt := fmt.Sprintf(`Create %d characters that belong in this world:

World name: %s
Description: %s
Background: %s
Keywords: %s

Respond with a JSON array in exactly this shape:
[
  {
    "name": "character name",
    "description": "one or two sentence summary",
    "personality": "key traits, briefly",
    "background": "history in two or three sentences"
  }
]

Each character should be distinctive, fit the world, and bring a different perspective to a discussion.`,
		count, world.Name, world.Description, world.Background, keywords)

	content, err := g.complete(ctx, characterBuilderSystemPrompt, prompt, 800)
	if err != nil {
		return nil, err
	}

	var chars []GeneratedCharacter
	if err := json.Unmarshal([]byte(content), &chars); err != nil {
		return nil, fmt.Errorf("failed to decode character roster: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("empty character roster")
	}
	return chars, nil
}

func (g *WorldGenerator) complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: completionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.8,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const (
	worldBuilderSystemPrompt     = "You are an imaginative world-building expert. You turn keywords into compelling fantasy settings."
	characterBuilderSystemPrompt = "You are an imaginative character designer. You create memorable characters that fit a given world."
)

type worldTemplate struct {
	name        string
	description string
	background  string
}

var worldTemplates = []worldTemplate{
	{
		name:        "The Enchanted Realm of {keywords}",
		description: "A mysterious magical world shaped by {keywords}.",
		background:  "In this realm {keywords} holds a central place. Ancient magic built a distinctive civilization around {keywords}, and its people still draw on that power in their daily lives.",
	},
	{
		name:        "Kingdom of {keywords}",
		description: "A grand kingdom built on {keywords}.",
		background:  "The Kingdom of {keywords} carries centuries of history. Its people honor {keywords} and have raised a culture and craft upon it, and the realm's peace is said to rest on its protection.",
	},
	{
		name:        "The Hidden Lands of {keywords}",
		description: "A secluded frontier steeped in {keywords}.",
		background:  "Old legends of {keywords} linger in these remote lands. Those who enter must face its true nature in a beautiful, dangerous place where wilderness and {keywords} intertwine.",
	},
}

// characterArchetypes is the fixed roster pool for the template path.
var characterArchetypes = []GeneratedCharacter{
	{
		Name:        "Sage of {keywords}",
		Description: "A learned figure with deep knowledge of {keywords}.",
		Personality: "thoughtful, careful, analytical",
		Background:  "A scholar who has studied {keywords} for decades, weighing every question from several angles before speaking.",
	},
	{
		Name:        "Warrior of {keywords}",
		Description: "A brave fighter sworn to defend {keywords}.",
		Personality: "courageous, decisive, principled",
		Background:  "A veteran of long campaigns against every threat to {keywords}, judging matters by what can actually be done and done quickly.",
	},
	{
		Name:        "Merchant of {keywords}",
		Description: "A trader whose business turns on {keywords}.",
		Personality: "pragmatic, persuasive, sociable",
		Background:  "A dealer made wealthy by trading in {keywords}, bringing an economic eye and a wide network to every problem.",
	},
	{
		Name:        "Artist of {keywords}",
		Description: "A creator whose works celebrate {keywords}.",
		Personality: "creative, sensitive, idealistic",
		Background:  "An artist captivated by {keywords}, offering the perspective of taste and imagination where others see only practicalities.",
	},
	{
		Name:        "Explorer of {keywords}",
		Description: "An adventurer chasing the mysteries of {keywords}.",
		Personality: "curious, adventurous, optimistic",
		Background:  "A traveler who has charted the unknown edges of {keywords}, fueled by the thrill of discovery.",
	},
}

// templateCharacters renders up to count archetypes in pool order.
func templateCharacters(keywords string, count int) []GeneratedCharacter {
	if count > len(characterArchetypes) {
		count = len(characterArchetypes)
	}
	chars := make([]GeneratedCharacter, 0, count)
	for _, arch := range characterArchetypes[:count] {
		chars = append(chars, GeneratedCharacter{
			Name:        expand(arch.Name, keywords),
			Description: expand(arch.Description, keywords),
			Personality: arch.Personality,
			Background:  expand(arch.Background, keywords),
		})
	}
	return chars
}

func expand(template, keywords string) string {
	return strings.ReplaceAll(template, "{keywords}", keywords)
}

func keywordHash(keywords string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(keywords))
	return h.Sum32()
}
