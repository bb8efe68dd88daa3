package signaller

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/energylab/metronom/pkg/logger"
)

// Sound is an audible cue played to the operator.
type Sound int

const (
	SoundFailure Sound = iota
	SoundOperationsFinished
	SoundOperationsStarted
	SoundSyncDone
	SoundUSBConnected
	SoundUSBDisconnected
	SoundWaitForDisconnect
)

func (s Sound) String() string {
	switch s {
	case SoundFailure:
		return "failure"
	case SoundOperationsFinished:
		return "operations finished"
	case SoundOperationsStarted:
		return "operations started"
	case SoundSyncDone:
		return "sync done"
	case SoundUSBConnected:
		return "usb connected"
	case SoundUSBDisconnected:
		return "usb disconnected"
	case SoundWaitForDisconnect:
		return "waiting for usb disconnect"
	default:
		return fmt.Sprintf("sound(%d)", int(s))
	}
}

// Sounder plays cues. Play must not block for long.
type Sounder interface {
	Play(ctx context.Context, s Sound)
}

// LogSounder logs cues, optionally ringing the terminal bell.
type LogSounder struct {
	Log  logger.Logger
	Bell bool
}

func (l LogSounder) Play(_ context.Context, s Sound) {
	if l.Bell {
		l.Log.Info("\a%s", s)
		return
	}
	l.Log.Info("sound: %s", s)
}

// CommandSounder speaks cues through an external text-to-speech command
// such as "espeak". The cue text is appended as the last argument.
type CommandSounder struct {
	Command string
	Args    []string
	Log     logger.Logger
}

// NewCommandSounder parses a command line like "espeak -s 150".
func NewCommandSounder(commandLine string, l logger.Logger) (*CommandSounder, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty sound command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("sound command: %w", err)
	}
	return &CommandSounder{Command: fields[0], Args: fields[1:], Log: l}, nil
}

func (c *CommandSounder) Play(ctx context.Context, s Sound) {
	args := append(append([]string(nil), c.Args...), s.String())
	if err := exec.CommandContext(ctx, c.Command, args...).Run(); err != nil && c.Log != nil {
		c.Log.Warning("sound %q: %v", s, err)
	}
}

// RecordingSounder remembers every cue. Useful in tests and dry runs.
type RecordingSounder struct {
	mu     sync.Mutex
	played []Sound
}

func (r *RecordingSounder) Play(_ context.Context, s Sound) {
	r.mu.Lock()
	r.played = append(r.played, s)
	r.mu.Unlock()
}

// Played returns the cues played so far.
func (r *RecordingSounder) Played() []Sound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sound(nil), r.played...)
}

// Count returns how many times s was played.
func (r *RecordingSounder) Count(s Sound) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.played {
		if p == s {
			n++
		}
	}
	return n
}
