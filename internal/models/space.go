package models

import "time"

// Deployable artifact attributes used by scheduled-space discovery.
const (
	FileTypePak          = "pak"
	DeploymentTypeServer = "server"
)

// Space is the virtual place a workload serves. The core reads spaces, it
// never writes them.
type Space struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Map       string    `gorm:"column:map" json:"map"`
	GameMode  string    `gorm:"column:game_mode" json:"game_mode"`
	ModID     *string   `gorm:"column:mod_id" json:"mod_id,omitempty"`
	Scheduled bool      `gorm:"index;column:scheduled" json:"scheduled"`
	Public    bool      `gorm:"column:public" json:"public"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Space) TableName() string {
	return "spaces"
}

// ModFile is a build artifact attached to a space's mod. Discovery only cares
// about processed server paks for the requested platform.
type ModFile struct {
	ID             string `gorm:"primaryKey;column:id" json:"id"`
	ModID          string `gorm:"index;column:mod_id" json:"mod_id"`
	Type           string `gorm:"column:type" json:"type"`
	Platform       string `gorm:"column:platform" json:"platform"`
	DeploymentType string `gorm:"column:deployment_type" json:"deployment_type"`
}

func (ModFile) TableName() string {
	return "mod_files"
}
