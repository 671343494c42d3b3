package builder

import (
	"mime"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/teranos/regalsync/entity"
)

// usageVocabulary maps the legacy usage values (lower-cased) onto the roles
// the dispatcher routes on. Values outside the table pass through unchanged.
var usageVocabulary = map[string]string{
	"volume":      string(entity.TypeVolume),
	"band":        string(entity.TypeVolume),
	"vol":         string(entity.TypeVolume),
	"issue":       string(entity.TypeIssue),
	"heft":        string(entity.TypeIssue),
	"file":        string(entity.TypeFile),
	"data":        string(entity.TypeFile),
	"view":        string(entity.TypeFile),
	"view_main":   string(entity.TypeFile),
	"archive":     string(entity.TypeFile),
	"version":     string(entity.TypeVersion),
	"root":        string(entity.TypeRootElement),
	"rootelement": string(entity.TypeRootElement),
	"journal":     string(entity.TypeJournal),
	"webpage":     string(entity.TypeWebpage),
	"monograph":   string(entity.TypeMonograph),
}

// NormalizeUsage maps a legacy usage value to a role name
func NormalizeUsage(usage string) string {
	usage = strings.TrimSpace(usage)
	if role, ok := usageVocabulary[strings.ToLower(usage)]; ok {
		return role
	}
	return usage
}

// NormalizePartition canonicalizes a partition code: "  ejo01 " -> "EJO01"
func NormalizePartition(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeLabel trims and NFC-normalizes a label. Legacy exports mix
// composed and decomposed umlauts.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// NormalizeMimeType drops parameters and lower-cases: "Application/PDF; q=1" -> "application/pdf"
func NormalizeMimeType(mt string) string {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(mt)
}
