package export

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout holds the branding printed on every card.
type Layout struct {
	Institution  string `yaml:"institution"`
	StudentTitle string `yaml:"student_title"`
	StaffTitle   string `yaml:"staff_title"`
	ValidLabel   string `yaml:"valid_label"`
	IssuedLabel  string `yaml:"issued_label"`
	IDLabel      string `yaml:"id_label"`
	StaffIDLabel string `yaml:"staff_id_label"`
	HeaderColor  string `yaml:"header_color"`
	AccentColor  string `yaml:"accent_color"`
	TextColor    string `yaml:"text_color"`
	MutedColor   string `yaml:"muted_color"`
}

// DefaultLayout returns the built-in card branding.
func DefaultLayout() Layout {
	return Layout{
		Institution:  "Harbour.Space University",
		StudentTitle: "STUDENT ID",
		StaffTitle:   "STAFF ID",
		ValidLabel:   "Valid until",
		IssuedLabel:  "Issued",
		IDLabel:      "ID",
		StaffIDLabel: "Staff ID",
		HeaderColor:  "#1A1A2E",
		AccentColor:  "#E94E1B",
		TextColor:    "#1A1A1A",
		MutedColor:   "#6B6B6B",
	}
}

// LoadLayout reads a YAML layout file over the defaults. An empty path yields the defaults.
func LoadLayout(path string) (Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read card layout: %w", err)
	}
	return ParseLayout(raw)
}

// ParseLayout decodes YAML; unset keys keep their default value.
func ParseLayout(raw []byte) (Layout, error) {
	layout := DefaultLayout()
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return Layout{}, fmt.Errorf("decode card layout: %w", err)
	}
	for name, value := range map[string]string{
		"header_color": layout.HeaderColor,
		"accent_color": layout.AccentColor,
		"text_color":   layout.TextColor,
		"muted_color":  layout.MutedColor,
	} {
		if _, err := parseHexColor(value); err != nil {
			return Layout{}, fmt.Errorf("card layout %s: %w", name, err)
		}
	}
	return layout, nil
}

type rgb struct{ r, g, b int }

func parseHexColor(s string) (rgb, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return rgb{}, fmt.Errorf("color %q must be #RRGGBB", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{}, fmt.Errorf("color %q must be #RRGGBB", s)
	}
	return rgb{r: int(v >> 16 & 0xFF), g: int(v >> 8 & 0xFF), b: int(v & 0xFF)}, nil
}

// colorOf falls back to black for a malformed value.
func colorOf(s string) rgb {
	c, err := parseHexColor(s)
	if err != nil {
		return rgb{}
	}
	return c
}
