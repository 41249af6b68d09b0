package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/internal/synth"
)

func TestSegmentsMarkdown(t *testing.T) {
	got := segmentsMarkdown([]string{"Hello *world*", "Line one\nLine two"}, playback.ModeClip)
	want := "# 2 segments (clip mode)\n\n" +
		"**1** · 13 chars\n\n> Hello \\*world\\*\n\n" +
		"**2** · 17 chars\n\n> Line one\n> Line two\n\n"
	assert.Equal(t, want, got)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b \[c\] \#d \<e`, escapeMarkdown("a_b [c] #d <e"))
	assert.Equal(t, "plain text", escapeMarkdown("plain text"))
}

func TestResolveVoice(t *testing.T) {
	voices := []synth.Voice{
		{ID: "nova", Provider: "openai"},
		{ID: "alloy", Provider: "openai"},
		{ID: "alloy", Provider: "mock"},
	}

	v, err := resolveVoice(voices, "nova")
	require.NoError(t, err)
	assert.Equal(t, "openai", v.Provider)

	v, err = resolveVoice(voices, "mock:alloy")
	require.NoError(t, err)
	assert.Equal(t, "mock", v.Provider)

	_, err = resolveVoice(voices, "alloy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai:alloy")
	assert.Contains(t, err.Error(), "mock:alloy")

	_, err = resolveVoice(voices, "echo")
	assert.Error(t, err)
}

func TestVoiceLine(t *testing.T) {
	line := voiceLine(synth.Voice{ID: "en-US-Wavenet-A", Name: "Wavenet A", Language: "en-US", Gender: "FEMALE", Provider: "google"}, true, 0)
	assert.Contains(t, line, favoriteMark)
	assert.Contains(t, line, "en-US-Wavenet-A")
	assert.Contains(t, line, "Wavenet A (female)")
}

func withViper(t *testing.T, kv map[string]any) {
	t.Helper()
	for k, v := range kv {
		old := viper.Get(k)
		viper.Set(k, v)
		t.Cleanup(func() { viper.Set(k, old) })
	}
}

func TestNewProvider(t *testing.T) {
	p, err := newProvider("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	_, err = newProvider("festival")
	assert.ErrorIs(t, err, synth.ErrNoProvider)
}

func TestBuildProvider(t *testing.T) {
	t.Run("skips unknown fallbacks", func(t *testing.T) {
		withViper(t, map[string]any{
			"provider.name":     "Mock",
			"provider.fallback": []string{"festival", "mock"},
		})

		p, err := buildProvider()
		require.NoError(t, err)
		assert.IsType(t, &synth.Resilient{}, p)
		assert.Equal(t, "mock", p.Name())
	})

	t.Run("unknown primary fails", func(t *testing.T) {
		withViper(t, map[string]any{
			"provider.name":     "festival",
			"provider.fallback": []string{"mock"},
		})

		_, err := buildProvider()
		assert.ErrorIs(t, err, synth.ErrNoProvider)
	})
}

func TestValidateStyle(t *testing.T) {
	assert.NoError(t, validateStyle("auto"))
	assert.NoError(t, validateStyle("dark"))
	assert.Error(t, validateStyle("/definitely/not/a/style.json"))
}
