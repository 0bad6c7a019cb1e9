package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// changing the hashed shape later.
const (
	DomainSnapshot = "tabletop/snapshot/v1"
	DomainSetup    = "tabletop/setup/v1"
	DomainEvent    = "tabletop/event/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash identifies a world state. Two replays of the same log must
// produce equal hashes at every node.
func SnapshotHash(s Snapshot) (string, error) {
	canonical, err := MarshalCanonical(s.IR())
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// SetupHash identifies the immutable setup blob a game was created from.
func SetupHash(s Setup) (string, error) {
	canonical, err := MarshalCanonical(s.IR())
	if err != nil {
		return "", fmt.Errorf("SetupHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSetup, canonical), nil
}

// EventHash identifies one submitted decision.
func EventHash(e HistoryEvent) (string, error) {
	canonical, err := MarshalCanonical(e.IR())
	if err != nil {
		return "", fmt.Errorf("EventHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustSnapshotHash is like SnapshotHash but panics on error.
// Use only in tests or when the snapshot is known to be valid.
func MustSnapshotHash(s Snapshot) string {
	h, err := SnapshotHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
