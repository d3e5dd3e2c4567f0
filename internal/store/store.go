// Package store defines the dataset catalog contract: named datasets whose
// revisions are content identities. Every update bumps the revision, and the
// served data URL embeds it, so a content change always changes the locator a
// frame fetches.
package store

import (
	"context"
	"regexp"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/schema"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// MaxSlugLength bounds dataset slugs; longer names are rejected, not cut.
const MaxSlugLength = 64

// Record is one catalog entry: the source table, the transform that shapes
// it, and the chart document rendered at the current revision.
type Record struct {
	ID        uuid.UUID
	Slug      string
	Transform string
	Revision  uint64
	Table     dataset.Table
	Params    json.RawMessage
	Document  schema.ChartDocument
	Note      string
	UpdatedAt time.Time
}

// Catalog is the dataset store contract. Put creates (revision 1, conflict
// when the slug exists); CompareAndSwap replaces when the caller holds the
// current revision, bumping it by one.
type Catalog interface {
	Get(ctx context.Context, slug string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Put(ctx context.Context, record Record) (Record, error)
	CompareAndSwap(ctx context.Context, prevRevision uint64, record Record) (Record, error)
}

// ValidateSlug rejects names that cannot appear in a data URL path.
func ValidateSlug(slug string) error {
	if slug == "" {
		return errs.New("store", errs.CodeInvalid,
			errs.WithMessage("dataset slug required"))
	}
	if len(slug) > MaxSlugLength {
		return errs.New("store", errs.CodeInvalid,
			errs.WithMessage("dataset slug too long"),
			errs.WithMetaField("slug", slug))
	}
	if !slugPattern.MatchString(slug) {
		return errs.New("store", errs.CodeInvalid,
			errs.WithMessage("dataset slug must be lowercase words joined by dashes"),
			errs.WithMetaField("slug", slug))
	}
	return nil
}

// Validate checks the parts of a record every backend requires.
func (r Record) Validate() error {
	if err := ValidateSlug(r.Slug); err != nil {
		return err
	}
	if r.Transform == "" {
		return errs.New("store", errs.CodeInvalid,
			errs.WithMessage("dataset transform required"),
			errs.WithMetaField("slug", r.Slug))
	}
	return nil
}

// Clone returns a deep copy safe to hand across goroutines.
func (r Record) Clone() Record {
	out := r
	if len(r.Table.Columns) > 0 {
		columns := make([]dataset.Column, len(r.Table.Columns))
		for i, col := range r.Table.Columns {
			columns[i] = dataset.Column{
				Name:   col.Name,
				Values: append([]dataset.Value(nil), col.Values...),
			}
		}
		out.Table = dataset.Table{Columns: columns}
	}
	if len(r.Params) > 0 {
		out.Params = append(json.RawMessage(nil), r.Params...)
	}
	out.Document = r.Document.Clone()
	return out
}
