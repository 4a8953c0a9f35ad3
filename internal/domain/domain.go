// Package domain implements the Domain Matcher: classifying a normalized
// signature into a weighted domain via first-match-wins, segment-wildcard
// patterns, and loading the human-editable policy file those domains and
// patterns come from.
package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultWindowMs, DefaultCapPerSignature and DefaultPenaltyFactor mirror
// the Domain Policy schema's documented defaults, used when a policy file
// omits them.
const (
	DefaultWindowMs        int64   = 200
	DefaultCapPerSignature uint32  = 3
	DefaultPenaltyFactor   float64 = 0.1
)

// Domain is one named, weighted classification bucket with its ordered set
// of allow patterns.
type Domain struct {
	Name   string
	Weight float64
	Allow  []string
}

// Policy is the full Domain Policy: window/cap defaults plus the ordered
// list of domains patterns are matched against, in declaration order.
type Policy struct {
	Version           string
	PerActionWindowMs int64
	PerSignatureCap   uint32
	PenaltyFactor     float64
	Domains           []Domain

	// Hash is the sha256 of the raw policy file bytes, embedded in every
	// Score Report so two reports are comparable only when built from the
	// identical policy.
	Hash string
}

// wirePolicy mirrors the YAML schema of spec.md §3. Domains is a slice
// (not a map) in the wire struct's decode target so declaration order is
// preserved — viper/mapstructure decodes ordered YAML mapping keys into a
// Go map only if we ask it to, so the policy file uses an explicit list.
type wirePolicy struct {
	Version           string       `mapstructure:"version"`
	PerActionWindowMs int64        `mapstructure:"per_action_window_ms"`
	PerSignatureCap   uint32       `mapstructure:"per_signature_cap"`
	PenaltyFactor     float64      `mapstructure:"penalty_factor"`
	Domains           []wireDomain `mapstructure:"domains"`
}

type wireDomain struct {
	Name   string   `mapstructure:"name"`
	Weight float64  `mapstructure:"weight"`
	Allow  []string `mapstructure:"allow"`
}

// Load reads a domain policy YAML file from path.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain policy: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("per_action_window_ms", DefaultWindowMs)
	v.SetDefault("per_signature_cap", DefaultCapPerSignature)
	v.SetDefault("penalty_factor", DefaultPenaltyFactor)
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse domain policy: %w", err)
	}

	var w wirePolicy
	if err := v.Unmarshal(&w); err != nil {
		return nil, fmt.Errorf("unmarshal domain policy: %w", err)
	}

	sum := sha256.Sum256(raw)

	policy := &Policy{
		Version:           w.Version,
		PerActionWindowMs: w.PerActionWindowMs,
		PerSignatureCap:   w.PerSignatureCap,
		PenaltyFactor:     w.PenaltyFactor,
		Hash:              hex.EncodeToString(sum[:]),
	}
	for _, d := range w.Domains {
		policy.Domains = append(policy.Domains, Domain{Name: d.Name, Weight: d.Weight, Allow: d.Allow})
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// Validate checks the policy's static invariants.
func (p *Policy) Validate() error {
	if p.PerActionWindowMs <= 0 {
		return fmt.Errorf("domain policy: per_action_window_ms must be > 0")
	}
	seen := make(map[string]bool, len(p.Domains))
	for _, d := range p.Domains {
		if d.Name == "" {
			return fmt.Errorf("domain policy: domain name is required")
		}
		if seen[d.Name] {
			return fmt.Errorf("domain policy: duplicate domain name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Classify returns the first domain (in declaration order) whose allow
// patterns match signature, and its weight. Returns ok=false when no domain
// matches — the signature still occupies a slot in the global signature
// count, but contributes nothing to Base.
func (p *Policy) Classify(signature string) (name string, weight float64, ok bool) {
	for _, d := range p.Domains {
		for _, pattern := range d.Allow {
			if patternMatches(pattern, signature) {
				return d.Name, d.Weight, true
			}
		}
	}
	return "", 0, false
}

// patternMatches implements the segment-wildcard grammar: both pattern and
// signature split on ".", segment counts must be equal, and each pattern
// segment either matches literally or is "*".
func patternMatches(pattern, signature string) bool {
	pSegs := strings.Split(pattern, ".")
	sSegs := strings.Split(signature, ".")
	if len(pSegs) != len(sSegs) {
		return false
	}
	for i, seg := range pSegs {
		if seg == "*" {
			continue
		}
		if seg != sSegs[i] {
			return false
		}
	}
	return true
}
