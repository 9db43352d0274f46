// pkg/registry/schema.go
package registry

import "outreach-engine/internal/models"

// Catalog is a versioned file of message templates maintained alongside
// the deployment.
type Catalog struct {
	Version     string            `json:"version" yaml:"version"`
	LastUpdated string            `json:"lastUpdated" yaml:"lastUpdated"`
	Templates   []models.Template `json:"templates" yaml:"templates"`
}
