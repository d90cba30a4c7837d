// Package session holds the per-process session state: role, identity and
// the peer roster.
//
// The state is an explicit value handed to the engine and the presenter.
// Role guards are methods on it, so "may this process write to the journal"
// is a call (Authoritative) rather than a field read scattered around.
package session

import (
	"fmt"
	"slices"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/model"
)

// Role is the collaboration role of this process.
type Role int

const (
	// Undecided is the initial role: not shared, not joined.
	Undecided Role = iota
	// Host originated the share and is the only writer to the journal.
	Host
	// Guest joined someone else's share and never persists.
	Guest
)

func (r Role) String() string {
	switch r {
	case Undecided:
		return "undecided"
	case Host:
		return "host"
	case Guest:
		return "guest"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// MarshalText renders the role as its name in JSON responses.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// State is the session state of one process.
type State struct {
	role Role

	// Nick and MyColors identify the local participant.
	Nick     string
	MyColors model.Colors

	// Colors is the theme used to draw slides. For a guest it is replaced
	// by the host's theme when a share-colors event arrives.
	Colors model.Colors

	// Waiting is true from becoming a guest until the first slide arrives.
	Waiting bool

	roster   []string
	hostNick string
}

// New returns an Undecided state for the local participant.
func New(nick string, colors model.Colors) *State {
	return &State{
		role:     Undecided,
		Nick:     nick,
		MyColors: colors,
		Colors:   colors,
	}
}

// Role returns the current role.
func (s *State) Role() Role {
	return s.role
}

// BecomeHost moves Undecided to Host.
// There is no way back to Undecided, and Guest cannot become Host.
func (s *State) BecomeHost() error {
	if s.role != Undecided {
		return apperror.Conflict("session role", s.role.String())
	}
	s.role = Host
	return nil
}

// BecomeGuest moves Undecided to Guest and starts the waiting state.
// The caller clears the slide store; only the host's slides count from here.
func (s *State) BecomeGuest() error {
	if s.role != Undecided {
		return apperror.Conflict("session role", s.role.String())
	}
	s.role = Guest
	s.Waiting = true
	return nil
}

// Authoritative reports whether this process may write to the journal,
// trigger a rescan or record audio. True for Undecided and Host.
func (s *State) Authoritative() bool {
	return s.role != Guest
}

// Sharing reports whether a share is active in either direction.
func (s *State) Sharing() bool {
	return s.role != Undecided
}

// AddPeer appends nick to the roster unless it is already there.
// It reports whether the roster changed.
func (s *State) AddPeer(nick string) bool {
	if nick == "" || slices.Contains(s.roster, nick) {
		return false
	}
	s.roster = append(s.roster, nick)
	return true
}

// LastPeer returns the most recently added roster entry, or "".
func (s *State) LastPeer() string {
	if len(s.roster) == 0 {
		return ""
	}
	return s.roster[len(s.roster)-1]
}

// Roster returns a copy of the roster in join order.
func (s *State) Roster() []string {
	return slices.Clone(s.roster)
}

// SetHostNick records the nickname the host announced itself with.
func (s *State) SetHostNick(nick string) {
	s.hostNick = nick
}

// HostNick is the host's nickname as seen by a guest, or "" before the host
// has announced itself.
func (s *State) HostNick() string {
	return s.hostNick
}

// PresenterNick is the name exports are attributed to. A guest presents the
// host's work.
func (s *State) PresenterNick() string {
	if s.role == Guest && s.hostNick != "" {
		return s.hostNick
	}
	return s.Nick
}
