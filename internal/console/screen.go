package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"lobbyclient/internal/launcher"
	"lobbyclient/internal/lobby"
	"lobbyclient/internal/network"
	"lobbyclient/internal/room"
	"lobbyclient/internal/session"
)

// Header is the fixed part of the room screen.
type Header struct {
	RoomID  string
	Lobby   string
	Game    string
	Version string
	Server  string
}

// Screen renders menus and the room view. It implements session.UI.
type Screen struct {
	out    io.Writer
	clear  bool
	header Header

	title lipgloss.Style
	dim   lipgloss.Style
	good  lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	cue   lipgloss.Style
}

// NewScreen writes to out. The screen is cleared between room renders
// only when out is a terminal.
func NewScreen(out io.Writer) *Screen {
	r := lipgloss.NewRenderer(out)
	s := &Screen{
		out:   out,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("8")),
		good:  r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		bad:   r.NewStyle().Foreground(lipgloss.Color("9")),
		cue:   r.NewStyle().Bold(true),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.clear = true
	}
	return s
}

// SetHeader sets the header of the room screen for the next session.
func (s *Screen) SetHeader(h Header) { s.header = h }

func (s *Screen) Clear() {
	if s.clear {
		fmt.Fprint(s.out, "\033[H\033[2J")
	}
}

func (s *Screen) Title(text string) {
	fmt.Fprintln(s.out, s.title.Render("=== "+text+" ==="))
}

func (s *Screen) Printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Screen) Warn(format string, args ...any) {
	fmt.Fprintln(s.out, s.warn.Render(fmt.Sprintf(format, args...)))
}

func (s *Screen) Error(format string, args ...any) {
	fmt.Fprintln(s.out, s.bad.Render(fmt.Sprintf(format, args...)))
}

func (s *Screen) OK(format string, args ...any) {
	fmt.Fprintln(s.out, s.good.Render(fmt.Sprintf(format, args...)))
}

// Render draws the room.
func (s *Screen) Render(v room.View) {
	s.Clear()
	var b strings.Builder

	roomID := v.RoomID
	if roomID == "" {
		roomID = s.header.RoomID
	}
	b.WriteString(s.title.Render("=== Room "+roomID+" ===") + "\n")
	if s.header.Lobby != "" {
		b.WriteString(s.dim.Render("(lobby "+s.header.Lobby+")") + "\n")
	}
	if s.header.Game != "" {
		fmt.Fprintf(&b, "Game: %s@%s\n", s.header.Game, s.header.Version)
	}
	if s.header.Server != "" {
		fmt.Fprintf(&b, "Server: %s\n", s.header.Server)
	}

	switch v.Notice {
	case room.NoticeAwaitingState:
		b.WriteString("\n" + s.dim.Render("[waiting for room data...]") + "\n")
		s.menu(&b, v)
		fmt.Fprint(s.out, b.String())
		return
	case room.NoticeRoomClosed:
		b.WriteString("\n" + s.warn.Render("[system] The game is over or you were removed; the room is closed.") + "\n")
		fmt.Fprint(s.out, b.String())
		return
	}

	fmt.Fprintf(&b, "\nStatus: %s\n", v.Status)
	capacity := "?"
	if v.MaxPlayers > 0 {
		capacity = fmt.Sprint(v.MaxPlayers)
	}
	fmt.Fprintf(&b, "Players: %d/%s\n", len(v.Players), capacity)
	for _, p := range v.Players {
		mark := s.bad.Render("✗")
		if p.Ready {
			mark = s.good.Render("✓")
		}
		you := ""
		if p.You {
			you = " (you)"
		}
		fmt.Fprintf(&b, "  %s %s%s\n", mark, p.Name, you)
	}

	if line := s.notice(v); line != "" {
		b.WriteString("\n" + line + "\n")
	}
	s.menu(&b, v)
	fmt.Fprint(s.out, b.String())
}

func (s *Screen) notice(v room.View) string {
	switch v.Notice {
	case room.NoticeOwnerMayPropose:
		return s.cue.Render("You own this room: press [s] to propose starting the game")
	case room.NoticeWaitingForOwner:
		return "Waiting for the owner to propose a start..."
	case room.NoticeOwnerAwaitingGuests:
		lines := []string{"Start proposed, waiting for the guests:"}
		for _, a := range v.Acks {
			if a.Accepted {
				lines = append(lines, s.good.Render("   ✓ "+a.Name+": agreed"))
			} else {
				lines = append(lines, s.dim.Render("   … "+a.Name+": no answer yet"))
			}
		}
		return strings.Join(lines, "\n")
	case room.NoticeRespondToProposal:
		return s.cue.Render("The owner wants to start: [y] to agree, [n] to refuse")
	case room.NoticeWaitingForOthers:
		return s.good.Render("You agreed, waiting for: " + strings.Join(v.Pending, ", "))
	case room.NoticeAllAgreed:
		return s.good.Render("Everyone agreed, starting soon...")
	case room.NoticeRejectedByYou:
		return "You refused this start proposal"
	case room.NoticeRejectedByOther:
		line := s.warn.Render(v.RejectedBy + " refused the start proposal")
		if v.CanPropose {
			line += "\n" + s.cue.Render("You own this room: press [s] to propose starting the game")
		}
		return line
	case room.NoticeRejectedUnspecified:
		if v.CanPropose {
			return s.warn.Render("A guest refused, propose again later") + "\n" +
				s.cue.Render("You own this room: press [s] to propose starting the game")
		}
		return s.warn.Render("Someone refused the start proposal")
	case room.NoticeGameRunning:
		return s.good.Render("The game is running, play in the game window.")
	case room.NoticeGameStarting:
		return s.good.Render("Everyone agreed! Launching the game...")
	}
	return ""
}

func (s *Screen) menu(b *strings.Builder, v room.View) {
	b.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	if v.PlayerReady {
		b.WriteString("r) cancel ready\n")
	} else {
		b.WriteString("r) mark ready\n")
	}
	b.WriteString("q) leave the room\n")
	b.WriteString(s.dim.Render("(the room updates by itself)") + "\n")
}

// Report prints a session event under the room view.
func (s *Screen) Report(ev session.Event) {
	switch ev.Kind {
	case session.EventInputIgnored:
		s.Warn("A game is running, play in the game window; commands here are paused.")
	case session.EventUnknownInput:
		s.Printf("Unknown command. Use r, s, y, n or q.\n")
	case session.EventCommandFailed:
		s.Error("%s failed: %s", ev.Command, Describe(ev.Err))
	case session.EventGameStarting:
		s.OK("All players are ready! Starting the game...")
	case session.EventGameLaunched:
		s.OK("Game client started.")
	case session.EventLaunchFailed:
		if errors.Is(ev.Err, launcher.ErrArtifactMissing) {
			s.Error("Download the latest version of this game first.")
			return
		}
		s.Error("Could not start the game: %v", ev.Err)
	}
}

// Describe turns an error into the line shown to the player.
func Describe(err error) string {
	var nerr *network.Error
	if errors.As(err, &nerr) {
		switch nerr.Kind {
		case network.KindCommandRejected, network.KindSubscriptionRejected:
			if nerr.Message != "" {
				return nerr.Message
			}
		case network.KindTransport:
			return "cannot reach the lobby server"
		case network.KindAuthExpired:
			return "your login expired"
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Ended explains why a room session is over.
func (s *Screen) Ended(res session.Result) {
	switch res.Reason {
	case session.ReasonLeft:
		s.Printf("\n[system] Left the room, back to the lobby...\n")
	case session.ReasonRoomClosed:
		s.Warn("\n[system] The room is closed, back to the lobby.")
	case session.ReasonRoomGone:
		s.Warn("\n[system] The room no longer exists, back to the lobby.")
	case session.ReasonSubscriptionRejected:
		s.Error("Could not enter the room: %s", Describe(res.Err))
	case session.ReasonAuthExpired:
		s.Warn("\nYour login expired or you were logged out, please log in again.")
	case session.ReasonFailed:
		s.Error("Room connection lost: %s", Describe(res.Err))
	}
}

// Rooms prints the room list.
func (s *Screen) Rooms(rooms []lobby.RoomSummary) {
	if len(rooms) == 0 {
		s.Printf("[no rooms yet]\n")
		return
	}
	s.Printf("\n# Rooms\n")
	for i, r := range rooms {
		capacity := "?"
		if r.MaxPlayers > 0 {
			capacity = fmt.Sprint(r.MaxPlayers)
		}
		ready := "none"
		if len(r.ReadyPlayers) > 0 {
			ready = strings.Join(r.ReadyPlayers, ", ")
		}
		s.Printf("%2d) %s\n", i+1, s.cue.Render(r.RoomID))
		s.Printf("     game:    %s@%s\n", r.Game, r.Version)
		s.Printf("     server:  %s:%d\n", r.Host, r.Port)
		s.Printf("     status:  %s  players: %d/%s\n", r.Status, len(r.Players), capacity)
		s.Printf("     players: %s\n", strings.Join(r.Players, ", "))
		s.Printf("     ready:   %s\n", ready)
	}
}
