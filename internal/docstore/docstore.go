// Package docstore defines the hierarchical document store the service is built on: point
// reads and writes, equality queries, and realtime listeners over collections.
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no document exists at the reference.
var ErrNotFound = errors.New("document not found")

// Store is the contract every document store backend satisfies.
type Store interface {
	Get(ctx context.Context, ref DocRef) (Document, error)
	Set(ctx context.Context, ref DocRef, fields Fields) error
	Add(ctx context.Context, collection CollectionRef, fields Fields) (DocRef, error)
	Delete(ctx context.Context, ref DocRef) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Listen delivers the current result of q followed by one snapshot per change to the
	// result. The channel is closed once ctx is done.
	Listen(ctx context.Context, q Query) (<-chan Snapshot, error)
}

// CollectionRef addresses a collection, e.g. users or users/{uid}/buzzes.
type CollectionRef struct {
	path string
}

// Collection returns a reference to a top-level collection.
func Collection(name string) CollectionRef {
	return CollectionRef{path: strings.Trim(name, "/")}
}

// Path returns the slash-separated collection path.
func (c CollectionRef) Path() string { return c.path }

// Doc returns a reference to the document with the given id inside the collection.
func (c CollectionRef) Doc(id string) DocRef {
	return DocRef{Parent: c, ID: id}
}

// Query starts a query over every document in the collection.
func (c CollectionRef) Query() Query {
	return Query{Collection: c}
}

// Where starts a query filtered by an equality predicate.
func (c CollectionRef) Where(field string, value any) Query {
	return c.Query().Where(field, value)
}

// DocRef addresses a single document.
type DocRef struct {
	Parent CollectionRef
	ID     string
}

// Path returns the slash-separated document path.
func (d DocRef) Path() string { return d.Parent.path + "/" + d.ID }

// Collection returns a sub-collection nested under the document.
func (d DocRef) Collection(name string) CollectionRef {
	return CollectionRef{path: d.Path() + "/" + strings.Trim(name, "/")}
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality predicate on a single field.
type Filter struct {
	Field string
	Value any
}

// Order sorts results by a field. An empty Field orders by document id.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from one collection.
type Query struct {
	Collection CollectionRef
	Filters    []Filter
	Order      Order
	// Max limits the number of results; zero means unlimited.
	Max int
}

// Where adds an equality predicate.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// OrderBy sorts results by field.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Order = Order{Field: field, Direction: dir}
	return q
}

// Limit caps the number of results.
func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

// Document is a stored document.
type Document struct {
	Ref        DocRef
	Fields     Fields
	UpdateTime time.Time
}

// ID returns the document identifier.
func (d Document) ID() string { return d.Ref.ID }

// Snapshot is one emission of a listener.
type Snapshot struct {
	Documents []Document
	ReadTime  time.Time
	Err       error
}

// SameResult reports whether two result sets contain the same document versions in the same
// order. Listeners use it to suppress emissions for writes that do not change their result.
func SameResult(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Ref != b[i].Ref || !a[i].UpdateTime.Equal(b[i].UpdateTime) {
			return false
		}
	}
	return true
}
