package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// Document being read
	Path string

	Width       uint
	EnableMouse bool
	StartIndex  int

	HighlightColor string        `env:"READALONG_HIGHLIGHT_COLOR" envDefault:"#ECFD65"`
	SpokenColor    string        `env:"READALONG_SPOKEN_COLOR"    envDefault:"#89F0CB"`
	TimerExtend    time.Duration `env:"READALONG_TIMER_EXTEND"    envDefault:"10m"`
	Follow         bool          `env:"READALONG_FOLLOW"          envDefault:"true"`

	// For debugging the UI
	AltScreen bool `env:"READALONG_ALT_SCREEN" envDefault:"true"`
}
