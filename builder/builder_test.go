package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/source"
)

func writeRecord(t *testing.T, root, pid, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(source.RecordPath(root, pid), []byte(body), 0644))
}

func writeStream(t *testing.T, root, pid, file string, data []byte) {
	t.Helper()
	path := source.StreamPath(root, pid, source.StreamRef{File: file})
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestBuild_JournalTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "J")
	writeRecord(t, root, "J", `{"pid":"J","partition":" ejo01","is_parent":true,"label":"Zeitschrift",
		"relations":[
			{"relation":"part_of","pid":"V2","order":2},
			{"relation":"part_of","pid":"V1","order":1},
			{"relation":"manifestation_of","pid":"X"}]}`)
	writeRecord(t, root, "V1", `{"pid":"V1","usage_type":"VOLUME","label":"2001",
		"relations":[{"relation":"part_of","pid":"I1"},{"relation":"part_of","pid":"I2"}]}`)
	writeRecord(t, root, "V2", `{"pid":"V2","usage_type":"Band","label":"2002"}`)
	writeRecord(t, root, "I1", `{"pid":"I1","usage_type":"Heft","order":5}`)
	writeRecord(t, root, "I2", `{"pid":"I2","usage_type":"issue"}`)

	b := New(zaptest.NewLogger(t).Sugar())
	e, err := b.Build(root, "J")
	require.NoError(t, err)

	assert.Equal(t, "EJO01", e.Partition)
	assert.True(t, e.IsParent)
	parts := e.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, "V1", parts[0].PID)
	assert.Equal(t, "V2", parts[1].PID)
	assert.Equal(t, "volume", parts[0].UsageType)
	assert.Equal(t, "volume", parts[1].UsageType)
	assert.Equal(t, "J", parts[0].ParentPID)

	issues := parts[0].Parts()
	require.Len(t, issues, 2)
	// I1 has record order 5, I2 falls back to declaration index 1
	assert.Equal(t, "I2", issues[0].PID)
	assert.Equal(t, "I1", issues[1].PID)
	assert.Equal(t, "issue", issues[1].UsageType)
	assert.Equal(t, "V1", issues[0].ParentPID)
}

func TestBuild_MissingRootFails(t *testing.T) {
	_, err := New(nil).Build(t.TempDir(), "nope")
	assert.Error(t, err)
}

func TestBuild_MissingChildAndCycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "A")
	writeRecord(t, root, "A", `{"pid":"A","relations":[{"relation":"part_of","pid":"B"},{"relation":"part_of","pid":"gone"}]}`)
	writeRecord(t, root, "B", `{"pid":"B","relations":[{"relation":"part_of","pid":"A"}]}`)

	e, err := New(zaptest.NewLogger(t).Sugar()).Build(root, "A")
	require.NoError(t, err)
	parts := e.Parts()
	require.Len(t, parts, 1)
	assert.Equal(t, "B", parts[0].PID)
	assert.Empty(t, parts[0].Parts())
}

func TestBuild_Streams(t *testing.T) {
	root := filepath.Join(t.TempDir(), "M")
	writeRecord(t, root, "M", `{"pid":"M","partition":"WPD01","is_parent":true,"streams":[
		{"kind":"data","url":"http://dtl/x/thesis.pdf"},
		{"kind":"PREVIEW","file":"thumb.png","mime_type":"Image/PNG; q=1"},
		{"kind":"ARCHIVE","file":"missing.zip"}]}`)
	writeStream(t, root, "M", "thesis.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n"))
	writeStream(t, root, "M", "thumb.png", []byte("not really a png"))

	e, err := New(zaptest.NewLogger(t).Sugar()).Build(root, "M")
	require.NoError(t, err)

	data, ok := e.Stream(entity.StreamData)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", data.MimeType, "sniffed from content")
	assert.Equal(t, "thesis.pdf", data.FileName)

	preview, ok := e.Stream(entity.StreamPreview)
	require.True(t, ok)
	assert.Equal(t, "image/png", preview.MimeType, "declared type wins")

	_, ok = e.Stream("ARCHIVE")
	assert.False(t, ok)
}

func TestBuild_LabelNormalizationAndConcordance(t *testing.T) {
	root := filepath.Join(t.TempDir(), "W")
	// "Mu" + combining diaeresis
	writeRecord(t, root, "W", `{"pid":"W","partition":"WSC01","label":" Mu\u0308nster ","legacy_id":"42","identifiers":["HT001"]}`)

	c, err := ParseConcordance(strings.NewReader("^URL_ID;HBZID;EDOWEB3_ID\n42;HT999;edoweb:7\n"))
	require.NoError(t, err)

	e, err := New(nil, WithConcordance(c)).Build(root, "W")
	require.NoError(t, err)
	assert.Equal(t, "Münster", e.Label)
	assert.Equal(t, []string{"HT001", "HT999"}, e.Identifiers)
}

func TestNormalizeUsage(t *testing.T) {
	tests := map[string]string{
		"VOLUME":      "volume",
		" Heft ":      "issue",
		"VIEW_MAIN":   "file",
		"rootElement": "rootElement",
		"ROOT":        "rootElement",
		"VERSION":     "version",
		"thumbnail":   "thumbnail",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeUsage(in), in)
	}
}

func TestNormalizeMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", NormalizeMimeType(" Application/PDF "))
	assert.Equal(t, "text/html", NormalizeMimeType("text/html; charset=utf-8"))
	assert.Equal(t, "", NormalizeMimeType(""))
}

func TestParseConcordance(t *testing.T) {
	input := `# exported 2014-03-01
^URL_ID;HBZID;EDOWEB3_ID
1001;HT012;edoweb:3000

# trailing comment
1002;;edoweb:3001
`
	c, err := ParseConcordance(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	v, ok := c.Lookup("1001", ColumnHBZID)
	require.True(t, ok)
	assert.Equal(t, "HT012", v)

	_, ok = c.Lookup("1002", ColumnHBZID)
	assert.False(t, ok, "empty cell is no value")

	v, ok = c.Lookup("1002", "edoweb3_id")
	require.True(t, ok)
	assert.Equal(t, "edoweb:3001", v)

	var nilConcordance *Concordance
	_, ok = nilConcordance.Lookup("1001", ColumnHBZID)
	assert.False(t, ok)

	_, err = ParseConcordance(strings.NewReader("1001;HT012\n"))
	assert.Error(t, err)
}

func TestLoadConcordance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "konkordanz.csv")
	require.NoError(t, os.WriteFile(path, []byte("^URL_ID;HBZID\n7;HT7\n"), 0644))

	c, err := LoadConcordance(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = LoadConcordance(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
