package harvest

import "strings"

// IDStrategy maps an OAI header identifier to the source system's local id
type IDStrategy interface {
	LocalID(oaiIdentifier string) string
}

// DigitoolStrategy keeps the segment after the last colon:
// "oai:digitool.hbz-nrw.de:1750717" -> "1750717".
type DigitoolStrategy struct{}

func (DigitoolStrategy) LocalID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// IdentityStrategy passes identifiers through unchanged
type IdentityStrategy struct{}

func (IdentityStrategy) LocalID(id string) string { return strings.TrimSpace(id) }

// StrategyByName resolves the sync.id_strategy setting
func StrategyByName(name string) IDStrategy {
	if name == "identity" {
		return IdentityStrategy{}
	}
	return DigitoolStrategy{}
}

// ParseSets splits a comma-separated set list, dropping blanks
func ParseSets(s string) []string {
	var sets []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			sets = append(sets, part)
		}
	}
	return sets
}
