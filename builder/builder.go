// Package builder turns a cached record tree into an entity.DigitalEntity.
package builder

import (
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/source"
)

// Builder reads cached records. It holds no per-build state.
type Builder struct {
	concordance *Concordance
	logger      *zap.SugaredLogger
}

// Option customizes a Builder
type Option func(*Builder)

// WithConcordance adds catalog identifiers from a crosswalk table
func WithConcordance(c *Concordance) Option {
	return func(b *Builder) { b.concordance = c }
}

// New creates a Builder
func New(logger *zap.SugaredLogger, opts ...Option) *Builder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &Builder{logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads the tree rooted at pid from cachePath. The root record must be
// readable; missing or unreadable descendants and streams are logged and
// left out.
func (b *Builder) Build(cachePath, pid string) (*entity.DigitalEntity, error) {
	rec, err := readRecord(cachePath, pid)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s", pid)
	}

	root := b.convert(cachePath, rec)
	root.ParentPID = strings.TrimSpace(rec.ParentPID)
	b.attachParts(cachePath, root, rec, map[string]bool{root.PID: true})
	return root, nil
}

func (b *Builder) attachParts(cachePath string, parent *entity.DigitalEntity, rec *source.Record, path map[string]bool) {
	index := 0
	for _, rel := range rec.Relations {
		if rel.Relation != source.RelationPartOf || rel.PID == "" {
			continue
		}
		declared := index
		index++

		if path[rel.PID] {
			b.logger.Warnw("Cycle in part_of relations, not descending",
				"pid", rel.PID,
				"parent_pid", parent.PID,
			)
			continue
		}

		childRec, err := readRecord(cachePath, rel.PID)
		if err != nil {
			b.logger.Warnw("Related record unavailable, skipping",
				"pid", rel.PID,
				"parent_pid", parent.PID,
				"error", err,
			)
			continue
		}

		child := b.convert(cachePath, childRec)
		switch {
		case rel.Order != nil:
			child.Order = *rel.Order
		case childRec.Order != nil:
			child.Order = *childRec.Order
		default:
			child.Order = declared
		}
		parent.AddPart(child)

		path[child.PID] = true
		b.attachParts(cachePath, child, childRec, path)
		delete(path, child.PID)
	}
}

func (b *Builder) convert(cachePath string, rec *source.Record) *entity.DigitalEntity {
	e := &entity.DigitalEntity{
		PID:          strings.TrimSpace(rec.PID),
		Partition:    NormalizePartition(rec.Partition),
		UsageType:    NormalizeUsage(rec.UsageType),
		IsParent:     rec.IsParent,
		Label:        NormalizeLabel(rec.Label),
		CreatedBy:    rec.CreatedBy,
		ImportedFrom: rec.ImportedFrom,
		LegacyID:     rec.LegacyID,
		Identifiers:  append([]string(nil), rec.Identifiers...),
	}
	if rec.Order != nil {
		e.Order = *rec.Order
	}

	if hbzID, ok := b.concordance.Lookup(rec.LegacyID, ColumnHBZID); ok && !contains(e.Identifiers, hbzID) {
		e.Identifiers = append(e.Identifiers, hbzID)
	}

	for _, ref := range rec.Streams {
		path := source.StreamPath(cachePath, e.PID, ref)
		if _, err := os.Stat(path); err != nil {
			b.logger.Warnw("Stream not in cache, leaving it out",
				"pid", e.PID,
				"kind", ref.Kind,
				"file", path,
			)
			continue
		}
		kind := entity.StreamKind(strings.ToUpper(strings.TrimSpace(ref.Kind)))
		if kind == "" {
			kind = entity.StreamData
		}
		if e.Streams == nil {
			e.Streams = make(map[entity.StreamKind]entity.Stream)
		}
		e.Streams[kind] = entity.Stream{
			Kind:     kind,
			Path:     path,
			FileName: ref.FileName(),
			MimeType: b.mimeType(ref, path),
		}
	}
	return e
}

// mimeType prefers the declared type and sniffs the file otherwise
func (b *Builder) mimeType(ref source.StreamRef, path string) string {
	if declared := NormalizeMimeType(ref.MimeType); declared != "" {
		return declared
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		b.logger.Debugw("MIME detection failed", "file", path, "error", err)
		return "application/octet-stream"
	}
	return NormalizeMimeType(detected.String())
}

func readRecord(cachePath, pid string) (*source.Record, error) {
	data, err := os.ReadFile(source.RecordPath(cachePath, pid))
	if err != nil {
		return nil, errors.Wrapf(err, "record %s not in cache", pid)
	}
	return source.Parse(data)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
