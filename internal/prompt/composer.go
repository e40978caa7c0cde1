package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/llm"
)

const (
	roastPersona = "You are a funny roast comedian who makes jokes about Roblox players. Keep it friendly and funny, not mean!"

	battlePersona = "You are a funny gaming commentator who compares two Roblox players. Make it funny but friendly!"

	memeInstruction = "Generate a funny gaming meme in one sentence"

	gameBuilderPersona = `You are a creative game developer assistant for a Dino Runner game!

**Be Creative!** When users ask for things like "add random obstacles" or "make it more interesting":
- Add multiple obstacle types with different shapes (circles, triangles, rectangles)
- Vary sizes, colors, and heights
- Add bouncing obstacles (use bounceSpeed parameter)
- Mix tall obstacles, short obstacles, flying obstacles (higher Y values)

**Tools:**
1. modify_game_property - Change basic settings
2. add_obstacle_type - Add NEW varied obstacle types
3. add_power_up - Add collectible power-ups (shield, speed, doubleJump, slowMotion)

**Examples:**
- "Add random obstacles" -> Create 3-5 different obstacle types with varied shapes/sizes/colors
- "Make obstacles bounce" -> Add obstacles with bounceSpeed: 8
- "Add flying obstacles" -> Create obstacles with y: 120
- "Make it harder" -> Increase speed, add more obstacle variety
- "Give me a shield" -> Add a shield power-up

Always be creative and add variety!`
)

var (
	roastTemplate = template.Must(template.New("roast").Parse(
		`Roast this Roblox player: {{.Username}}. Their account is {{.AccountAgeDays}} days old, they have {{.BadgeCount}} badges, and {{if .HasVerifiedBadge}}ARE{{else}}ARE NOT{{end}} verified.`))

	battleTemplate = template.Must(template.New("battle").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(`Compare these two Roblox players:
{{range $i, $p := .}}
Player {{inc $i}}: {{$p.Username}}
- Account age: {{$p.AccountAgeDays}} days
- Badges: {{$p.BadgeCount}}
- Verified: {{if $p.HasVerifiedBadge}}Yes{{else}}No{{end}}
{{end}}
Who's better and why?`))

	imageTemplate = template.Must(template.New("image").Parse(`A funny cartoon meme about a Roblox player named {{.Username}}.
They are a "{{.Rating}}" level player.
The meme should show a blocky Roblox character with text overlay making a joke about having {{.AccountAgeDays}} days of playtime.
Make it colorful, funny, and gaming-themed. No real people, cartoon style only.`))
)

// Composer builds provider requests from typed domain input
type Composer struct {
	chatModel string
	memeModel string
}

// NewComposer creates a composer using the models named in cfg
func NewComposer(cfg *config.LLMConfig) *Composer {
	return &Composer{chatModel: cfg.ChatModel, memeModel: cfg.MemeModel}
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// RoastRequest asks for a roast_response object about one player
func (c *Composer) RoastRequest(in domain.RoastRequest) (llm.Request, error) {
	user, err := render(roastTemplate, in)
	if err != nil {
		return llm.Request{}, err
	}
	return llm.Request{
		Model: c.chatModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: roastPersona},
			{Role: llm.RoleUser, Content: user},
		},
		Schema: &RoastSchema,
	}, nil
}

// BattleRequest asks for a battle_result comparing two players
func (c *Composer) BattleRequest(p1, p2 domain.PlayerProfile) (llm.Request, error) {
	user, err := render(battleTemplate, []domain.PlayerProfile{p1, p2})
	if err != nil {
		return llm.Request{}, err
	}
	return llm.Request{
		Model: c.chatModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: battlePersona},
			{Role: llm.RoleUser, Content: user},
		},
		Schema: &BattleSchema,
	}, nil
}

// ImagePrompt returns the text prompt for a player meme image
func (c *Composer) ImagePrompt(in domain.ImageRequest) (string, error) {
	return render(imageTemplate, in)
}

// MemeRequest asks for a one-sentence gaming meme
func (c *Composer) MemeRequest() llm.Request {
	return llm.Request{
		Model:    c.memeModel,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: memeInstruction}},
	}
}

// GameChatRequest puts the game builder persona in front of the conversation
// and declares the game editing tools. Turns with other roles are dropped.
func (c *Composer) GameChatRequest(messages []domain.ChatMessage) llm.Request {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: gameBuilderPersona})
	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return llm.Request{
		Model:    c.chatModel,
		Messages: out,
		Tools:    GameTools,
	}
}
