package alert

import (
	"io"
	"os"
	"os/exec"
)

// Tone rings the terminal bell. Always available when the writer is live.
type Tone struct {
	Out io.Writer
}

func (t *Tone) Name() string { return "tone" }

func (t *Tone) Available() bool { return t.out() != nil }

func (t *Tone) Play() error {
	_, err := t.out().Write([]byte{0x07})
	return err
}

func (t *Tone) out() io.Writer {
	if t.Out != nil {
		return t.Out
	}
	return os.Stdout
}

// Clip shells out to an audio player with a bundled sound file.
type Clip struct {
	Player string // e.g. "paplay"
	File   string
}

func (c *Clip) Name() string { return "clip" }

func (c *Clip) Available() bool {
	if c.Player == "" || c.File == "" {
		return false
	}
	if _, err := exec.LookPath(c.Player); err != nil {
		return false
	}
	_, err := os.Stat(c.File)
	return err == nil
}

func (c *Clip) Play() error {
	return exec.Command(c.Player, c.File).Run()
}

// Haptic is the last-resort tier. Нет вибромотора на этой платформе,
// поэтому ярус по умолчанию недоступен и существует ради полноты цепочки.
type Haptic struct {
	Trigger func() error
}

func (h *Haptic) Name() string { return "haptic" }

func (h *Haptic) Available() bool { return h.Trigger != nil }

func (h *Haptic) Play() error { return h.Trigger() }

// DefaultChain — tone, then clip, then haptic.
func DefaultChain() []Strategy {
	return []Strategy{
		&Tone{},
		&Clip{Player: "paplay", File: "/usr/share/sounds/freedesktop/stereo/message.oga"},
		&Haptic{},
	}
}
