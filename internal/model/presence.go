package model

import "math/rand/v2"

// Palette is the fixed set of presence colors
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#FFA07A",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E2",
}

// PresenceEntry is a connected participant
type PresenceEntry struct {
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
	Color        string `json:"color"`
}

// InPalette returns true if color is one of the palette colors
func InPalette(color string) bool {
	for _, c := range Palette {
		if c == color {
			return true
		}
	}
	return false
}

// RandomColor picks a palette color
func RandomColor() string {
	return Palette[rand.IntN(len(Palette))]
}
