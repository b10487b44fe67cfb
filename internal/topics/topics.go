// Package topics supplies the daily speaking prompts. The catalog is static
// and embedded; selection is the only logic here.
package topics

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"moonolog/internal/domain"
)

//go:embed topics.json
var catalogJSON []byte

// Catalog holds the loaded topic set.
type Catalog struct {
	topics []domain.Topic
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	var payload struct {
		Topics []domain.Topic `json:"topics"`
	}
	if err := json.Unmarshal(catalogJSON, &payload); err != nil {
		return nil, fmt.Errorf("parse topic catalog: %w", err)
	}
	if len(payload.Topics) == 0 {
		return nil, errors.New("topic catalog is empty")
	}
	return &Catalog{topics: payload.Topics}, nil
}

// Today returns the deterministic topic for the given day: every launch on
// the same date picks the same prompt.
func (c *Catalog) Today(now time.Time) domain.Topic {
	seed := now.Year()*10000 + int(now.Month())*100 + now.Day()
	return c.topics[seed%len(c.topics)]
}

// Random returns an arbitrary topic for the shuffle gesture.
func (c *Catalog) Random() domain.Topic {
	return c.topics[rand.IntN(len(c.topics))]
}

// All returns a copy of the catalog.
func (c *Catalog) All() []domain.Topic {
	out := make([]domain.Topic, len(c.topics))
	copy(out, c.topics)
	return out
}
