package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainProgram = "kdl/program/v1"
	DomainFiring  = "kdl/firing/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramHash computes a content-addressed identity for a compiled program.
// Two sources that differ only in whitespace or comments hash equal.
func ProgramHash(p *Program) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// FiringID computes a stable ID for one verb dispatch within a run.
func FiringID(runID string, cycle, seq int64, rule RuleID) string {
	data := fmt.Sprintf("%s\x00%d\x00%d\x00%d", runID, cycle, seq, rule)
	return hashWithDomain(DomainFiring, []byte(data))
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProgramHash(p *Program) string {
	h, err := ProgramHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
