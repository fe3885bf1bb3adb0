// Package id generates prefixed identifiers for locally created rows.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PendingPrefix marks an optimistic placeholder row that the remote has not confirmed yet.
const PendingPrefix = "pending"

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "cm-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Pending returns a placeholder ID for an optimistic row.
func Pending() string {
	return MustGenerate(PendingPrefix)
}

// IsPending reports whether id was produced by Pending.
func IsPending(id string) bool {
	return strings.HasPrefix(id, PendingPrefix+"-")
}
