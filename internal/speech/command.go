package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgnsrekt/readalong/internal/chunk"
	"github.com/dgnsrekt/readalong/internal/synth"
)

// Commands lists the supported speech commands in detection order.
var Commands = []string{"say", "espeak-ng", "espeak", "spd-say"}

// Exec runs a command to completion and returns its stdout.
type Exec func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandDriver speaks through a speech command line tool, one sentence per
// invocation, so that sentence boundaries can be reported.
type CommandDriver struct {
	command string
	exec    Exec
}

var _ Driver = (*CommandDriver)(nil)

// NewCommandDriver returns a driver for command. "auto" or "" picks the first
// supported command found on PATH.
func NewCommandDriver(command string) (*CommandDriver, error) {
	if command == "" || command == "auto" {
		for _, c := range Commands {
			if c == "say" && runtime.GOOS != "darwin" {
				continue
			}
			if _, err := exec.LookPath(c); err == nil {
				return &CommandDriver{command: c, exec: runExec}, nil
			}
		}
		return nil, ErrNoDriver
	}

	if !isSupported(command) {
		return nil, fmt.Errorf("unsupported speech command %q (want one of %s)", command, strings.Join(Commands, ", "))
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrNoDriver, command)
	}
	return &CommandDriver{command: command, exec: runExec}, nil
}

// NewCommandDriverWithExec returns a driver for command that runs through fn.
func NewCommandDriverWithExec(command string, fn Exec) (*CommandDriver, error) {
	if !isSupported(command) {
		return nil, fmt.Errorf("unsupported speech command %q", command)
	}
	return &CommandDriver{command: command, exec: fn}, nil
}

// Name implements Driver.
func (d *CommandDriver) Name() string {
	return d.command
}

// Speak implements Driver. A boundary is reported at the start of each
// sentence.
func (d *CommandDriver) Speak(ctx context.Context, u Utterance, onBoundary func(int)) error {
	for _, span := range chunk.Sentences(u.Text) {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw := u.Text[span.Start:span.End]
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}

		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		onBoundary(utf8.RuneCountInString(u.Text[:span.Start+lead]))

		if _, err := d.exec(ctx, d.command, d.args(sentence, u)...); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s failed: %w", d.command, err)
		}
	}
	return nil
}

func (d *CommandDriver) args(text string, u Utterance) []string {
	wpm := strconv.Itoa(u.WordsPerMinute())
	var args []string

	switch d.command {
	case "say":
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		args = append(args, "-r", wpm)
	case "espeak-ng", "espeak":
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		args = append(args, "-s", wpm)
	case "spd-say":
		// -w blocks until spoken; rate is relative, -100..100
		args = append(args, "-w", "-r", strconv.Itoa(spdRate(u.Rate)))
		if u.Voice != "" {
			args = append(args, "-y", u.Voice)
		}
	}
	if d.command == "say" {
		return append(args, text)
	}
	// text after "--" so leading dashes are not read as flags
	return append(args, "--", text)
}

func spdRate(rate float64) int {
	if rate <= 0 {
		rate = 1
	}
	r := int((rate - 1) * 100)
	if r < -100 {
		return -100
	}
	if r > 100 {
		return 100
	}
	return r
}

var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

// Voices lists the voices the command offers.
func (d *CommandDriver) Voices(ctx context.Context) ([]synth.Voice, error) {
	var args []string
	switch d.command {
	case "say":
		args = []string{"-v", "?"}
	case "espeak-ng", "espeak":
		args = []string{"--voices"}
	case "spd-say":
		args = []string{"-L"}
	}

	out, err := d.exec(ctx, d.command, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s voices: %w", d.command, err)
	}
	return parseVoices(d.command, out), nil
}

func parseVoices(command string, out []byte) []synth.Voice {
	var voices []synth.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch command {
		case "say":
			m := sayVoiceLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := strings.TrimSpace(m[1])
			voices = append(voices, synth.Voice{
				ID:       name,
				Name:     name,
				Language: strings.ReplaceAll(m[2], "_", "-"),
				Provider: command,
			})

		case "espeak-ng", "espeak":
			if header {
				header = false
				continue
			}
			// Pty Language Age/Gender VoiceName File ...
			f := strings.Fields(line)
			if len(f) < 4 {
				continue
			}
			gender := ""
			if _, g, ok := strings.Cut(f[2], "/"); ok {
				switch g {
				case "M":
					gender = "male"
				case "F":
					gender = "female"
				}
			}
			voices = append(voices, synth.Voice{
				ID:       f[1],
				Name:     strings.ReplaceAll(f[3], "_", " "),
				Language: f[1],
				Gender:   gender,
				Provider: command,
			})

		case "spd-say":
			if header {
				header = false
				continue
			}
			// NAME LANGUAGE VARIANT
			f := strings.Fields(line)
			if len(f) < 2 {
				continue
			}
			voices = append(voices, synth.Voice{
				ID:       f[0],
				Name:     f[0],
				Language: f[1],
				Provider: command,
			})
		}
	}
	return voices
}

func isSupported(command string) bool {
	for _, c := range Commands {
		if c == command {
			return true
		}
	}
	return false
}

func runExec(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
