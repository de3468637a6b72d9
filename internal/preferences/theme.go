package preferences

import (
	"fmt"
	"strings"
)

// Theme is the color scheme of the presentation layer.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// DefaultTheme applies when nothing is configured or stored.
const DefaultTheme = ThemeDark

// themeKey is the store key holding the theme.
const themeKey = "theme"

// ParseTheme accepts "dark" or "light" in any case.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	default:
		return "", fmt.Errorf("unknown theme %q: must be dark or light", s)
	}
}

// Toggled returns the opposite theme.
func (t Theme) Toggled() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// ThemeService reads and writes the theme through a Store. The fallback is
// used when the store holds no valid value.
type ThemeService struct {
	store    Store
	fallback Theme
}

// NewThemeService creates a service. An invalid fallback becomes DefaultTheme.
func NewThemeService(store Store, fallback Theme) *ThemeService {
	if _, err := ParseTheme(string(fallback)); err != nil {
		fallback = DefaultTheme
	}
	return &ThemeService{store: store, fallback: fallback}
}

// Current returns the stored theme, or the fallback.
func (s *ThemeService) Current() (Theme, error) {
	v, ok, err := s.store.Get(themeKey)
	if err != nil {
		return s.fallback, err
	}
	if !ok {
		return s.fallback, nil
	}
	t, err := ParseTheme(v)
	if err != nil {
		return s.fallback, nil
	}
	return t, nil
}

// Set stores t.
func (s *ThemeService) Set(t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	return s.store.Set(themeKey, string(t))
}

// Toggle flips the stored theme and returns the new value.
func (s *ThemeService) Toggle() (Theme, error) {
	cur, err := s.Current()
	if err != nil {
		return cur, err
	}
	next := cur.Toggled()
	if err := s.store.Set(themeKey, string(next)); err != nil {
		return cur, err
	}
	return next, nil
}
