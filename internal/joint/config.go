package joint

import (
	"fmt"

	"github.com/recordlink/recordlink/internal/collection"
)

// Config declares a one-to-many relationship between a parent and a child
// collection. It is read once at construction; the joint never mutates it.
type Config struct {
	// ParentEntity and ChildEntity name the two sides of the relationship.
	ParentEntity string
	ChildEntity  string

	// LookupField is the child field holding the parent's external key. It
	// may be a dotted path.
	LookupField string

	// ParentFieldName is the child field under which the denormalized parent
	// snapshot is embedded.
	ParentFieldName string

	// ParentFields lists the parent fields copied into the snapshot. The
	// parent collection's local-key field is always included, whether listed
	// or not.
	ParentFields []string

	ParentCollection collection.Collection
	ChildCollection  collection.Collection

	// RelatedListName, when set, enables maintenance of an embedded list of
	// child summaries on the parent record.
	RelatedListName string

	// RelatedListFields lists the child fields copied into each summary
	// entry. Required when RelatedListName is set; the child collection's
	// local-key field is always included.
	RelatedListFields []string
}

func (c Config) validate() error {
	if c.ParentEntity == "" {
		return fmt.Errorf("%w: parent entity is required", ErrInvalidConfig)
	}
	if c.ChildEntity == "" {
		return fmt.Errorf("%w: child entity is required", ErrInvalidConfig)
	}
	if c.LookupField == "" {
		return fmt.Errorf("%w: lookup field is required", ErrInvalidConfig)
	}
	if c.ParentFieldName == "" {
		return fmt.Errorf("%w: parent field name is required", ErrInvalidConfig)
	}
	if c.ParentCollection == nil {
		return fmt.Errorf("%w: parent collection is required", ErrInvalidConfig)
	}
	if c.ChildCollection == nil {
		return fmt.Errorf("%w: child collection is required", ErrInvalidConfig)
	}
	return validateOptions(c)
}
