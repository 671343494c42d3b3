package ingest

import (
	"strings"

	"github.com/teranos/regalsync/entity"
)

// Predicates written by the ingest handlers
const (
	PredicateTitle  = "http://purl.org/dc/terms/title"
	PredicateVolume = "http://purl.org/ontology/bibo/volume"
	PredicateIssue  = "http://purl.org/ontology/bibo/issue"
)

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

// Triple is one N-Triples statement with a literal object
type Triple struct {
	Predicate string
	Object    string
}

// NTriples renders statements about pid, one per line
func NTriples(pid entity.PID, triples ...Triple) string {
	var b strings.Builder
	subject := "<info:fedora/" + pid.String() + ">"
	for _, t := range triples {
		b.WriteString(subject)
		b.WriteString(" <")
		b.WriteString(t.Predicate)
		b.WriteString("> \"")
		b.WriteString(literalEscaper.Replace(t.Object))
		b.WriteString("\" .\n")
	}
	return b.String()
}

func titleOf(e *entity.DigitalEntity) string {
	if e.Label != "" {
		return e.Label
	}
	return e.PID
}
