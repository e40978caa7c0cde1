package prompt

import "github.com/roblox-funapp/internal/llm"

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func num(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// RoastSchema is the structured output of a roast
var RoastSchema = llm.Schema{
	Name: "roast_response",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":     str("A funny roast title"),
			"mainRoast": str("The main roast joke (1-2 sentences)"),
			"rating":    str("Noob, Pro, or Legend"),
			"funFact":   str("A silly fun fact about the player"),
		},
		"required":             []string{"title", "mainRoast", "rating", "funFact"},
		"additionalProperties": false,
	},
}

// BattleSchema is the structured output of a player battle
var BattleSchema = llm.Schema{
	Name: "battle_result",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"winner":        str("Username of the winner"),
			"battleSummary": str("Funny comparison summary"),
			"player1Score":  num("Score out of 10"),
			"player2Score":  num("Score out of 10"),
			"finishingMove": str("A funny finishing line"),
		},
		"required":             []string{"winner", "battleSummary", "player1Score", "player2Score", "finishingMove"},
		"additionalProperties": false,
	},
}

// Game editing tool names
const (
	ToolModifyProperty = "modify_game_property"
	ToolAddObstacle    = "add_obstacle_type"
	ToolAddPowerUp     = "add_power_up"
)

// GameTools are declared on every game builder request
var GameTools = []llm.Tool{
	{
		Name:        ToolModifyProperty,
		Description: "Modify a game property like dino color, jump power, game speed, obstacle size/spawn, background/ground colors, and more.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"property": str("The property to modify. Prefer these keys: 'dino.color', 'gravity', 'gameSpeed', 'jumpPower', 'background', 'groundColor', 'obstacle.color', 'obstacle.spawnRate', 'obstacle.width', 'obstacle.height', 'doubleJump'"),
				"value":    str("The new value (e.g., '#0000ff' for blue, '5' for speed)"),
			},
			"required": []string{"property", "value"},
		},
	},
	{
		Name:        ToolAddObstacle,
		Description: "Add a new obstacle type to the game with custom properties. This creates variety - obstacles will be randomly chosen from all types.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"width":  num("Width of the obstacle (e.g., 30, 60)"),
				"height": num("Height of the obstacle (e.g., 40, 80)"),
				"color":  str("Color as hex code (e.g., '#ff0000')"),
				"shape": map[string]any{
					"type":        "string",
					"description": "Shape type: 'rect', 'circle', or 'triangle'",
					"enum":        []string{"rect", "circle", "triangle"},
				},
				"y":           num("Y position (170 is ground level, lower numbers are higher)"),
				"bounceSpeed": num("If set, obstacle bounces vertically (e.g., 8 for bouncing)"),
			},
			"required": []string{"width", "height", "color", "shape"},
		},
	},
	{
		Name:        ToolAddPowerUp,
		Description: "Add a collectible power-up. Power-ups float above the ground and grant a temporary effect.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind": map[string]any{
					"type":        "string",
					"description": "Effect granted on pickup",
					"enum":        []string{"shield", "speed", "doubleJump", "slowMotion"},
				},
				"color":    str("Color as hex code (e.g., '#ffd700')"),
				"size":     num("Size in pixels (e.g., 24)"),
				"y":        num("Y position (170 is ground level, lower numbers are higher)"),
				"duration": num("Effect duration in milliseconds (e.g., 5000)"),
			},
			"required": []string{"kind"},
		},
	},
}
