// Package speakers tracks who is talking during a hearing. Speakers
// arrive auto-detected from diarization ids and can later be assigned a
// courtroom role and display name by the operator.
package speakers

import (
	"fmt"
	"sort"
	"sync"
)

// Role classifies a courtroom participant.
type Role string

const (
	RoleJudge      Role = "juez"
	RoleProsecutor Role = "fiscal"
	RoleDefense    Role = "defensor"
	RoleAccused    Role = "acusado"
	RoleWitness    Role = "testigo"
	RoleClerk      Role = "secretario"
	RoleOther      Role = "otro"
)

// roleColors give each role a stable display color. Auto-detected
// speakers cycle through the palette until assigned a role.
var roleColors = map[Role]string{
	RoleJudge:      "#7b2d8b",
	RoleProsecutor: "#b3261e",
	RoleDefense:    "#1a5fb4",
	RoleAccused:    "#9a6700",
	RoleWitness:    "#1f7a3d",
	RoleClerk:      "#5e5c64",
	RoleOther:      "#3d3846",
}

var palette = []string{
	"#1a5fb4", "#1f7a3d", "#b3261e", "#9a6700", "#7b2d8b", "#5e5c64",
}

// Speaker is one roster entry.
type Speaker struct {
	ID           string
	Role         Role
	Label        string
	Name         string
	Color        string
	Order        int
	AutoDetected bool
}

// Roster is the per-session speaker registry. Safe for concurrent use.
type Roster struct {
	mu      sync.Mutex
	entries map[string]*Speaker
	order   []string
}

func NewRoster() *Roster {
	return &Roster{entries: make(map[string]*Speaker)}
}

// Ensure returns the entry for id, creating an auto-detected one with a
// generated label on first sight.
func (r *Roster) Ensure(id string) Speaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sp, ok := r.entries[id]; ok {
		return *sp
	}
	n := len(r.order) + 1
	sp := &Speaker{
		ID:           id,
		Role:         RoleOther,
		Label:        fmt.Sprintf("Hablante %d", n),
		Color:        palette[(n-1)%len(palette)],
		Order:        n - 1,
		AutoDetected: true,
	}
	r.entries[id] = sp
	r.order = append(r.order, id)
	return *sp
}

// Assign sets the role and optional display name for a speaker. The
// label follows the role; the color switches to the role color. Unknown
// ids are created first so assignments before any speech still stick.
func (r *Roster) Assign(id string, role Role, name string) Speaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	sp, ok := r.entries[id]
	if !ok {
		sp = &Speaker{ID: id, Order: len(r.order)}
		r.entries[id] = sp
		r.order = append(r.order, id)
	}
	sp.Role = role
	sp.Name = name
	sp.AutoDetected = false
	sp.Color = roleColors[role]
	if sp.Color == "" {
		sp.Color = roleColors[RoleOther]
	}
	sp.Label = labelFor(role, name)
	return *sp
}

// Label returns the display label for id, or the id itself when the
// speaker was never registered.
func (r *Roster) Label(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sp, ok := r.entries[id]; ok {
		return sp.Label
	}
	return id
}

// Get looks up a roster entry by id.
func (r *Roster) Get(id string) (Speaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.entries[id]
	if !ok {
		return Speaker{}, false
	}
	return *sp, true
}

// List returns the roster in first-seen order.
func (r *Roster) List() []Speaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Speaker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Len reports the number of registered speakers.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func labelFor(role Role, name string) string {
	base := roleTitle(role)
	if name == "" {
		return base
	}
	return base + " " + name
}

func roleTitle(role Role) string {
	switch role {
	case RoleJudge:
		return "Juez"
	case RoleProsecutor:
		return "Fiscal"
	case RoleDefense:
		return "Defensor"
	case RoleAccused:
		return "Acusado"
	case RoleWitness:
		return "Testigo"
	case RoleClerk:
		return "Secretario"
	default:
		return "Participante"
	}
}
