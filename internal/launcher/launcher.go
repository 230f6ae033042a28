// Package launcher starts the downloaded game client for a room once every
// player agreed to start. The game process is started and reaped, never
// supervised.
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

const (
	ManifestFile = "manifest.json"
	DefaultEntry = "start_client.py"
	// DefaultInterpreter runs the entry script.
	DefaultInterpreter = "python3"
)

// ErrArtifactMissing means the game version is not downloaded for this
// player. The player has to download it and start a new round.
var ErrArtifactMissing = errors.New("game version not downloaded")

// Manifest is the part of a downloaded game's manifest.json the launcher
// reads.
type Manifest struct {
	Name        string `json:"name,omitempty"`
	Version     string `json:"version,omitempty"`
	EntryClient string `json:"entry_client,omitempty"`
}

// Request is everything the game client needs to find its server.
type Request struct {
	Player  string
	Game    string
	Version string
	RoomID  string
	Host    string
	Port    int
}

// Env is the environment handed to the game client, on top of the
// launcher's own.
func (r Request) Env() []string {
	return []string{
		"GAME_HOST=" + r.Host,
		"GAME_PORT=" + strconv.Itoa(r.Port),
		"ROOM_ID=" + r.RoomID,
		"GAME_NAME=" + r.Game,
		"GAME_VERSION=" + r.Version,
		"PLAYER_USERNAME=" + r.Player,
		"PLAYER_NAME=" + r.Player,
	}
}

type Launcher struct {
	downloads   string
	interpreter string
	log         *zap.Logger

	stdin          io.Reader
	stdout, stderr io.Writer
}

type Option func(*Launcher)

// WithInterpreter sets the program that runs the entry script.
func WithInterpreter(path string) Option {
	return func(l *Launcher) {
		if path != "" {
			l.interpreter = path
		}
	}
}

// WithTerminalInput gives the game the launcher's stdin. The room client
// keeps reading the same terminal, so a typed line reaches one of the two.
func WithTerminalInput() Option {
	return func(l *Launcher) {
		l.stdin = os.Stdin
	}
}

// WithStdio sets what the game process is attached to. Nil values detach.
func WithStdio(in io.Reader, out, errw io.Writer) Option {
	return func(l *Launcher) {
		l.stdin, l.stdout, l.stderr = in, out, errw
	}
}

// New returns a launcher for games downloaded under downloads. The game
// writes to the launcher's terminal and reads no input unless
// WithTerminalInput or WithStdio says otherwise.
func New(downloads string, log *zap.Logger, opts ...Option) *Launcher {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Launcher{
		downloads:   downloads,
		interpreter: DefaultInterpreter,
		log:         log.Named("launcher"),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ClientDir is where a game version is unpacked for player.
func (l *Launcher) ClientDir(player, game, version string) string {
	return filepath.Join(l.downloads, player, game, version)
}

// Installed reports whether the game version is present for player.
func (l *Launcher) Installed(player, game, version string) bool {
	_, err := os.Stat(filepath.Join(l.ClientDir(player, game, version), ManifestFile))
	return err == nil
}

// ReadManifest loads the manifest of an installed game version.
func (l *Launcher) ReadManifest(player, game, version string) (Manifest, error) {
	path := filepath.Join(l.ClientDir(player, game, version), ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, fmt.Errorf("%s@%s: %w", game, version, ErrArtifactMissing)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.EntryClient == "" {
		m.EntryClient = DefaultEntry
	}
	return m, nil
}

// Process is a started game client.
type Process struct {
	Pid   int
	Entry string
	done  chan struct{}
	err   error
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err is the exit error, valid after Done is closed.
func (p *Process) Err() error { return p.err }

// Launch checks that the game is installed and starts its client. It does
// not retry and does not wait for the game.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := l.ReadManifest(req.Player, req.Game, req.Version)
	if err != nil {
		return nil, err
	}

	dir := l.ClientDir(req.Player, req.Game, req.Version)
	entry := filepath.Join(dir, m.EntryClient)
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("entry %s: %w", m.EntryClient, ErrArtifactMissing)
	}

	// not tied to ctx: the game outlives the room session
	cmd := exec.Command(l.interpreter, m.EntryClient)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), req.Env()...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = l.stdin, l.stdout, l.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", m.EntryClient, err)
	}

	p := &Process{Pid: cmd.Process.Pid, Entry: m.EntryClient, done: make(chan struct{})}
	log := l.log.With(
		zap.String("game", req.Game),
		zap.String("version", req.Version),
		zap.String("room_id", req.RoomID),
		zap.Int("pid", p.Pid))
	log.Info("[Launcher] game client started", zap.String("entry", m.EntryClient))

	go func() {
		p.err = cmd.Wait()
		if p.err != nil {
			log.Info("[Launcher] game client exited", zap.Error(p.err))
		} else {
			log.Info("[Launcher] game client exited")
		}
		close(p.done)
	}()
	return p, nil
}
