package models

import "strings"

/************************************************
/**** MARK: CHAT SOURCES ****/
/************************************************/
const CHAT_SOURCE_INTERNAL = "internal"
const CHAT_SOURCE_WHATSAPP = "whatsapp"
const CHAT_SOURCE_EMAIL = "email"

var sourceOrder = []string{CHAT_SOURCE_INTERNAL, CHAT_SOURCE_WHATSAPP, CHAT_SOURCE_EMAIL}

// SourceSet is a deduplicated set of chat sources kept in canonical order
// (internal, whatsapp, email).
type SourceSet []string

func IsChatSource(s string) bool {
	for _, known := range sourceOrder {
		if s == known {
			return true
		}
	}
	return false
}

// NewSourceSet drops unknown and repeated entries.
func NewSourceSet(sources ...string) SourceSet {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if IsChatSource(s) {
			seen[s] = true
		}
	}
	out := make(SourceSet, 0, len(seen))
	for _, s := range sourceOrder {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}

func ParseSourceSet(raw string) SourceSet {
	if strings.TrimSpace(raw) == "" {
		return SourceSet{}
	}
	return NewSourceSet(strings.Split(raw, ",")...)
}

func (s SourceSet) Has(source string) bool {
	for _, v := range s {
		if v == source {
			return true
		}
	}
	return false
}

func (s SourceSet) With(sources ...string) SourceSet {
	all := append(append([]string{}, s...), sources...)
	return NewSourceSet(all...)
}

func (s SourceSet) Union(other SourceSet) SourceSet {
	return s.With(other...)
}

func (s SourceSet) String() string {
	return strings.Join(s, ",")
}
