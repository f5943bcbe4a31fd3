package ai

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultColor is used for any class without a palette entry.
const DefaultColor = "red"

var classColors = map[string]string{
	"screwdriver_1":     "blue",
	"screwdriver_2":     "green",
	"Offset_Phillips":   "orange",
	"Side_cutters":      "purple",
	"Shernica":          "pink",
	"Safety_pliers":     "cyan",
	"Pliers":            "yellow",
	"Rotary_wheel":      "brown",
	"Open_end_wrench":   "lime",
	"Oil_can_opener":    "magenta",
	"Adjustable_wrench": "teal",
}

var colorHex = map[string]string{
	"red":     "#ff0000",
	"blue":    "#0000ff",
	"green":   "#008000",
	"orange":  "#ffa500",
	"purple":  "#800080",
	"pink":    "#ffc0cb",
	"cyan":    "#00ffff",
	"yellow":  "#ffff00",
	"brown":   "#a52a2a",
	"lime":    "#00ff00",
	"magenta": "#ff00ff",
	"teal":    "#008080",
}

// ColorName returns the display color for a class.
func ColorName(class string) string {
	if name, ok := classColors[class]; ok {
		return name
	}
	return DefaultColor
}

// RGBA resolves a color name to the value used for drawing. Unknown names
// resolve to the default color.
func RGBA(name string) color.RGBA {
	hex, ok := colorHex[name]
	if !ok {
		hex = colorHex[DefaultColor]
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{R: 255, A: 255}
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// StrokeWidth scales the box outline with the larger image dimension.
func StrokeWidth(width, height int) int {
	longest := width
	if height > longest {
		longest = height
	}
	if w := longest / 150; w > 2 {
		return w
	}
	return 2
}
