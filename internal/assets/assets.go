package assets

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed dino-game.html
var dinoGame string

// DinoGame returns the embedded base game document
func DinoGame() string {
	return dinoGame
}

// LoadGame returns the file at path, or the embedded game when path is empty
func LoadGame(path string) (string, error) {
	if path == "" {
		return dinoGame, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading game document: %w", err)
	}
	return string(data), nil
}
