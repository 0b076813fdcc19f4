package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ImportArtifact is the report file to be submitted to the backend
type ImportArtifact struct {
	Name       string
	Content    []byte
	ModifiedAt time.Time
	Checksum   string
}

// NewImportArtifact creates an artifact and computes its SHA-256 checksum
func NewImportArtifact(name string, content []byte, modifiedAt time.Time) *ImportArtifact {
	sum := sha256.Sum256(content)
	return &ImportArtifact{
		Name:       name,
		Content:    content,
		ModifiedAt: modifiedAt,
		Checksum:   hex.EncodeToString(sum[:]),
	}
}

// Info returns the artifact metadata without its payload
func (a *ImportArtifact) Info() *ArtifactInfo {
	return &ArtifactInfo{
		Name:       a.Name,
		Size:       len(a.Content),
		Checksum:   a.Checksum,
		ModifiedAt: a.ModifiedAt,
	}
}

// ArtifactInfo describes a submitted artifact in run outcomes and the ledger
type ArtifactInfo struct {
	Name       string    `json:"name"`
	Size       int       `json:"size"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Credential is an opaque bearer token for the backend
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// IsZero reports whether no token is present
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// String never reveals the token
func (c Credential) String() string {
	if c.IsZero() {
		return "credential(empty)"
	}
	return "credential(redacted)"
}
