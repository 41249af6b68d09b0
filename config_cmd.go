package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# playback backend: clip (synthesis provider) or utterance (system speech)
mode: "clip"
# playback rate, 0.5 to 2.0
rate: 1.0
# sleep timer, e.g. "20m" (0 disables)
timer: 0
# reload the document when it changes
watch: true
# word-wrap at width (0 fits the terminal)
width: 0
# glamour style for the segments command
style: "auto"

provider:
  # google, openai, elevenlabs, gtts, piper or mock
  name: "gtts"
  # providers to fail over to, in order
  fallback: []
  requests_per_minute: 60
  timeout: "30s"
  retries: 2
  retry_delay: "500ms"

# provider voice; the provider default when empty
voice: ""

google:
  # api_key: "" (or GOOGLE_API_KEY)
  voice: "en-US-Standard-C"
  sample_rate: 24000

openai:
  # api_key: "" (or OPENAI_API_KEY)
  model: "tts-1"
  voice: "alloy"

elevenlabs:
  # api_key: "" (or ELEVENLABS_API_KEY)
  model: "eleven_flash_v2_5"
  voice: ""

gtts:
  language: "en"
  slow: false

piper:
  # path to an .onnx voice; its .onnx.json config is picked up next to it
  model: ""
  speaker: ""
  length_scale: 1.0

speech:
  # auto, say, espeak-ng, espeak or spd-say
  driver: "auto"
  voice: ""

audio:
  sample_rate: 24000
  channels: 1

chunk:
  clip_max_chars: 250
  utterance_max_chars: 1000

prefetch:
  delay: "5s"

highlight:
  interval: "50ms"

cache:
  # decoded clips kept behind the current segment; -1 never evicts
  keep_behind: 3
  # keep evicted clips zstd-compressed instead of dropping them
  compress_evicted: true
  compression_level: 3
  concurrency: 2

ocr:
  # tesseract language for scanned PDFs and images
  language: "eng"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readalong config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readalong config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readalong config\nreadalong config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("readalong", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
