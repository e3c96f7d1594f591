package app

import (
	"image/color"
	"math"
)

// ColorTheme selects a predefined color scheme for the waterfall.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white

	colorMapSize = 256
)

var validColorThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	ThermalTheme:   {},
}

// ColorMapper maps power values onto a pre-computed color gradient
// stretched between the display bounds.
type ColorMapper struct {
	colorMap      []color.Color
	boundsMin     float64
	powerPerIndex float64
}

// NewColorMapper creates a color mapper for the theme over the given
// power bounds.
func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	themeFn := colorThemeFunc(theme)

	cm := &ColorMapper{
		colorMap:      make([]color.Color, colorMapSize),
		boundsMin:     bounds.Min,
		powerPerIndex: (bounds.Max - bounds.Min) / float64(colorMapSize-1),
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = themeFn(float64(i) / float64(colorMapSize-1))
	}
	return cm
}

// GetColor returns the color for a power value, clamped to the bounds.
func (cm *ColorMapper) GetColor(power float64) color.Color {
	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= len(cm.colorMap) {
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

func colorThemeFunc(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return classicColor
	case GrayscaleTheme:
		return grayscaleColor
	default:
		return thermalColor
	}
}

// classicColor sweeps hue from blue (cold) to red (hot).
func classicColor(v float64) color.Color {
	hue := 240 * (1 - v) // 240° blue to 0° red
	return hsvToRGB(hue, 1, 0.2+0.8*v)
}

func grayscaleColor(v float64) color.Color {
	g := uint8(math.Round(v * 255))
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// thermalColor ramps black, red, yellow, white in three equal segments.
func thermalColor(v float64) color.Color {
	switch {
	case v < 1.0/3:
		return color.RGBA{R: ramp(v * 3), A: 255}
	case v < 2.0/3:
		return color.RGBA{R: 255, G: ramp((v - 1.0/3) * 3), A: 255}
	default:
		return color.RGBA{R: 255, G: 255, B: ramp((v - 2.0/3) * 3), A: 255}
	}
}

func ramp(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

func hsvToRGB(h, s, v float64) color.Color {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}
