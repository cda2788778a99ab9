// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix and ArtifactPrefix namespace generated IDs by entity.
const (
	RunPrefix      = "run-"
	ArtifactPrefix = "art-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// NewRunID returns a new unique workflow run ID.
func NewRunID() (string, error) {
	return generate(RunPrefix)
}

// NewArtifactID returns a new unique artifact ID.
func NewArtifactID() (string, error) {
	return generate(ArtifactPrefix)
}

func generate(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
