// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package match evaluates topic and procedure URIs against registered
// destination patterns under the exact, prefix and wildcard policies.
package match

import (
	"errors"
	"fmt"
	"strings"
)

// Policy selects how a pattern is compared with a candidate URI.
type Policy int

const (
	// Exact matches identical strings only.
	Exact Policy = iota
	// Prefix matches any candidate starting with the pattern. The test is a
	// plain string prefix: "user" matches "userxyz" as well as "user.login".
	Prefix
	// Wildcard matches candidates with the same number of '.'-separated
	// segments where every non-empty pattern segment is equal.
	Wildcard
)

// ErrUnknownPolicy reports an unrecognized "match" option value.
var ErrUnknownPolicy = errors.New("match: unknown policy")

// String returns the WAMP "match" option value of the policy
func (p Policy) String() string {
	switch p {
	case Exact:
		return "exact"
	case Prefix:
		return "prefix"
	case Wildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a WAMP "match" option value onto a Policy. The empty
// string selects Exact.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "exact":
		return Exact, nil
	case "prefix":
		return Prefix, nil
	case "wildcard":
		return Wildcard, nil
	}
	return Exact, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Matches reports whether candidate matches pattern under policy.
func Matches(pattern string, policy Policy, candidate string) bool {
	switch policy {
	case Exact:
		return candidate == pattern
	case Prefix:
		return strings.HasPrefix(candidate, pattern)
	case Wildcard:
		return matchSegments(Split(pattern), Split(candidate))
	}
	return false
}

// Split cuts a URI into its '.'-separated segments.
func Split(uri string) []string {
	return strings.Split(uri, ".")
}

func matchSegments(pattern, candidate []string) bool {
	if len(pattern) != len(candidate) {
		return false
	}
	for i, seg := range pattern {
		if seg != "" && seg != candidate[i] {
			return false
		}
	}
	return true
}

// Destination is an immutable (pattern, policy) pair. Wildcard patterns are
// split once at construction.
type Destination struct {
	pattern  string
	policy   Policy
	segments []string
}

// NewDestination returns the destination for pattern under policy.
func NewDestination(pattern string, policy Policy) Destination {
	d := Destination{pattern: pattern, policy: policy}
	if policy == Wildcard {
		d.segments = Split(pattern)
	}
	return d
}

// Pattern returns the registered pattern string.
func (d Destination) Pattern() string { return d.pattern }

// Policy returns the match policy.
func (d Destination) Policy() Policy { return d.policy }

// Matches reports whether candidate matches the destination.
func (d Destination) Matches(candidate string) bool {
	if d.policy == Wildcard {
		return matchSegments(d.segments, Split(candidate))
	}
	return Matches(d.pattern, d.policy, candidate)
}

// MatchesSegments is Matches for a candidate already cut with Split. Exact and
// prefix destinations rejoin the segments.
func (d Destination) MatchesSegments(candidate []string) bool {
	if d.policy == Wildcard {
		return matchSegments(d.segments, candidate)
	}
	return Matches(d.pattern, d.policy, strings.Join(candidate, "."))
}

// String renders the destination as "policy:pattern".
func (d Destination) String() string {
	return d.policy.String() + ":" + d.pattern
}
