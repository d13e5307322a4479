package models

import (
	"sort"
	"time"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
)

// Workload kinds. Dedicated servers are provisioned through the cluster
// orchestrator; online games are hosted by players and register themselves.
const (
	KindServer     = "server"
	KindOnlineGame = "online_game"
)

// Workload status values.
const (
	StatusCreated  = "created"
	StatusStarting = "starting"
	StatusOnline   = "online"
	StatusError    = "error"
	StatusStopping = "stopping"
)

// validTransitions maps each status to the set of statuses it may move to.
// A workload leaves "stopping" by disappearing from the cluster, not by a
// further transition.
var validTransitions = map[string]map[string]bool{
	StatusCreated: {
		StatusStarting: true,
		StatusError:    true,
		StatusStopping: true,
	},
	StatusStarting: {
		StatusOnline:   true,
		StatusError:    true,
		StatusStopping: true,
	},
	StatusOnline: {
		StatusOnline:   true,
		StatusError:    true,
		StatusStopping: true,
	},
	StatusError: {
		StatusOnline:   true,
		StatusError:    true,
		StatusStopping: true,
	},
}

// ValidTransition reports whether moving from one status to another is legal.
func ValidTransition(from, to string) bool {
	return validTransitions[from][to]
}

// TransitionSources returns every status allowed to move to the target,
// sorted, for use as the guard list of a conditional status update.
func TransitionSources(to string) []string {
	var from []string
	for status, targets := range validTransitions {
		if targets[to] {
			from = append(from, status)
		}
	}
	sort.Strings(from)
	return from
}

// Workload is a running or pending game-server instance bound to a space.
type Workload struct {
	ID         string    `gorm:"primaryKey;column:id" json:"id"`
	Kind       string    `gorm:"index;column:kind" json:"kind"`
	SpaceID    string    `gorm:"index:idx_workloads_match;column:space_id" json:"space_id"`
	Host       string    `gorm:"index;column:host" json:"host"`
	Port       int       `gorm:"column:port" json:"port"`
	Build      string    `gorm:"column:build" json:"build"`
	Image      string    `gorm:"column:image" json:"image"`
	Map        string    `gorm:"column:map" json:"map"`
	GameMode   string    `gorm:"column:game_mode" json:"game_mode"`
	MaxPlayers int       `gorm:"column:max_players" json:"max_players"`
	Status     string    `gorm:"index:idx_workloads_match;column:status" json:"status"`
	Details    string    `gorm:"column:details" json:"details,omitempty"`
	Name       string    `gorm:"column:name" json:"name"`
	Public     bool      `gorm:"column:public" json:"public"`
	OwnerID    string    `gorm:"column:owner_id" json:"owner_id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"index:idx_workloads_match;column:updated_at" json:"updated_at"`
}

func (Workload) TableName() string {
	return "workloads"
}

// ManageableBy reports whether the requester may delete or mutate the
// workload. Ownership is audit data; admins and internal system users pass.
func (w *Workload) ManageableBy(r *core.Requester) bool {
	if r == nil || r.IsBanned {
		return false
	}
	if r.IsAdmin || r.IsInternal {
		return true
	}
	return w.OwnerID == r.ID
}

// MatchCandidate is a workload row joined with its open-session count, as
// returned by the matcher query in a single consistent read.
type MatchCandidate struct {
	Workload
	Occupants int `gorm:"column:occupants" json:"occupants"`
}
