// Package audio records and plays the audio notes attached to slides.
//
// Recording has two stages. Stop ends capture and starts transcoding in the
// background; the caller learns about completion by polling Complete from a
// timer. Nothing here blocks the event loop.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Recorder captures one clip at a time.
type Recorder interface {
	// Start begins capturing.
	Start() error
	// Stop ends capture and starts producing the output clip.
	Stop() error
	// Complete reports whether the clip from the last Stop is ready.
	Complete() bool
	// Output is the path of the finished clip.
	Output() string
}

// Player plays a clip without waiting for it to finish.
type Player interface {
	Play(path string) error
}

// Commands are argv templates. "{in}" and "{out}" are replaced with the
// raw capture path and the final clip path, "{file}" with the clip to play.
type Commands struct {
	Record    []string
	Transcode []string // empty: the raw capture is the clip
	Play      []string
}

// DefaultCommands use ALSA for capture and GStreamer for encoding and playback.
var DefaultCommands = Commands{
	Record:    []string{"arecord", "-q", "-f", "cd", "-t", "wav", "{in}"},
	Transcode: []string{"gst-launch-1.0", "-q", "filesrc", "location={in}", "!", "wavparse", "!", "audioconvert", "!", "vorbisenc", "!", "oggmux", "!", "filesink", "location={out}"},
	Play:      []string{"gst-play-1.0", "-q", "{file}"},
}

var (
	ErrBusy       = errors.New("audio: already recording")
	ErrNotStarted = errors.New("audio: not recording")
)

// CommandDevice runs external programs for capture, transcode and playback.
type CommandDevice struct {
	cmds   Commands
	dir    string
	logger *slog.Logger

	mu        sync.Mutex
	rec       *exec.Cmd
	finishing bool
	complete  atomic.Bool
}

var (
	_ Recorder = (*CommandDevice)(nil)
	_ Player   = (*CommandDevice)(nil)
)

// NewCommandDevice keeps its working files in dir.
func NewCommandDevice(cmds Commands, dir string, logger *slog.Logger) *CommandDevice {
	return &CommandDevice{cmds: cmds, dir: dir, logger: logger}
}

func (d *CommandDevice) rawPath() string { return filepath.Join(d.dir, "output.wav") }

// Output is where the finished clip is written.
func (d *CommandDevice) Output() string {
	if len(d.cmds.Transcode) == 0 {
		return d.rawPath()
	}
	return filepath.Join(d.dir, "output.ogg")
}

func (d *CommandDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil || d.finishing {
		return ErrBusy
	}
	if len(d.cmds.Record) == 0 {
		return fmt.Errorf("audio: no record command configured")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("audio: creating work dir: %w", err)
	}
	_ = os.Remove(d.Output())

	cmd := d.command(context.Background(), d.cmds.Record, nil)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: starting capture: %w", err)
	}
	d.rec = cmd
	d.complete.Store(false)
	d.logger.Debug("audio capture started", slog.String("path", d.rawPath()))
	return nil
}

// Stop interrupts the capture and returns at once. Waiting for the capture
// to exit and the transcode both happen in the background; Complete turns
// true when the clip is on disk.
func (d *CommandDevice) Stop() error {
	d.mu.Lock()
	cmd := d.rec
	d.rec = nil
	if cmd != nil {
		d.finishing = true
	}
	d.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}

	// arecord finalizes the wav header on SIGINT.
	_ = cmd.Process.Signal(os.Interrupt)
	go d.finish(cmd)
	return nil
}

// finish reaps the capture and runs the transcode.
func (d *CommandDevice) finish(capture *exec.Cmd) {
	defer func() {
		d.mu.Lock()
		d.finishing = false
		d.mu.Unlock()
		d.complete.Store(true)
	}()

	_ = capture.Wait()
	if len(d.cmds.Transcode) == 0 {
		return
	}

	tc := d.command(context.Background(), d.cmds.Transcode, nil)
	if err := tc.Run(); err != nil {
		d.logger.Warn("audio transcode failed", slog.String("error", err.Error()))
	}
}

func (d *CommandDevice) Complete() bool {
	return d.complete.Load()
}

// Play starts playback and reaps the process in the background.
func (d *CommandDevice) Play(path string) error {
	if len(d.cmds.Play) == 0 {
		return fmt.Errorf("audio: no play command configured")
	}
	cmd := d.command(context.Background(), d.cmds.Play, map[string]string{"{file}": path})
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: starting playback: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (d *CommandDevice) command(ctx context.Context, argv []string, extra map[string]string) *exec.Cmd {
	args := expand(argv, map[string]string{"{in}": d.rawPath(), "{out}": d.Output()}, extra)
	return exec.CommandContext(ctx, args[0], args[1:]...)
}

func expand(argv []string, vars ...map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		for _, m := range vars {
			for k, v := range m {
				a = strings.ReplaceAll(a, k, v)
			}
		}
		out[i] = a
	}
	return out
}
