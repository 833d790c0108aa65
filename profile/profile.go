// Package profile negotiates and represents the immutable Audio Profile for
// a call: internal sample rate, ingress/egress encoding+rate, chunk
// duration, and transport output encoding.
package profile

import (
	"fmt"
	"sort"
)

// Profile is immutable once negotiated and shared by pointer across all
// components of one call.
type Profile struct {
	Name string

	// InternalRateHz is the sample rate the pipeline operates at internally.
	InternalRateHz int

	IngressEncoding string
	IngressRateHz   int

	EgressEncoding string
	EgressRateHz   int

	ChunkDurationMs int

	// TransportEncoding is the encoding bytes are carried in over the wire
	// transport (may differ from ingress/egress encoding if a transcode is
	// required at that boundary).
	TransportEncoding string
}

// Capability is one candidate profile a provider or transport can support.
type Capability struct {
	Name              string
	InternalRateHz    int
	IngressEncoding   string
	IngressRateHz     int
	EgressEncoding    string
	EgressRateHz      int
	ChunkDurationMs   int
	TransportEncoding string
}

// transcodeCount counts how many of a capability's four (encoding, rate)
// legs require a conversion versus matching the endpoints directly — lower
// is preferred.
func transcodeCount(c Capability) int {
	n := 0
	if c.IngressEncoding != c.TransportEncoding {
		n++
	}
	if c.EgressEncoding != c.TransportEncoding {
		n++
	}
	if c.IngressRateHz != c.InternalRateHz {
		n++
	}
	if c.EgressRateHz != c.InternalRateHz {
		n++
	}
	return n
}

// Negotiate intersects providerCaps and transportCaps (matched by Name) and
// picks preferredName if present in the intersection; otherwise the
// candidate with (a) highest InternalRateHz, (b) lowest transcode count,
// (c) lexicographic name as a deterministic tie-break. Returns an error if
// the intersection is empty — this is a fatal configuration error
// surfaced at reload time, never at call time.
func Negotiate(providerCaps, transportCaps []Capability, preferredName string) (*Profile, error) {
	byName := make(map[string]Capability, len(transportCaps))
	for _, c := range transportCaps {
		byName[c.Name] = c
	}

	var candidates []Capability
	for _, pc := range providerCaps {
		if tc, ok := byName[pc.Name]; ok && pc == tc {
			candidates = append(candidates, pc)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("profile: no capability intersection between provider and transport")
	}

	if preferredName != "" {
		for _, c := range candidates {
			if c.Name == preferredName {
				return toProfile(c), nil
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.InternalRateHz != b.InternalRateHz {
			return a.InternalRateHz > b.InternalRateHz
		}
		ta, tb := transcodeCount(a), transcodeCount(b)
		if ta != tb {
			return ta < tb
		}
		return a.Name < b.Name
	})
	return toProfile(candidates[0]), nil
}

func toProfile(c Capability) *Profile {
	return &Profile{
		Name:              c.Name,
		InternalRateHz:    c.InternalRateHz,
		IngressEncoding:   c.IngressEncoding,
		IngressRateHz:     c.IngressRateHz,
		EgressEncoding:    c.EgressEncoding,
		EgressRateHz:      c.EgressRateHz,
		ChunkDurationMs:   c.ChunkDurationMs,
		TransportEncoding: c.TransportEncoding,
	}
}
