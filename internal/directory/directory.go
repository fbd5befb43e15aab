// Package directory resolves user profiles by identifier or email.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// Directory reads user profiles from the document store.
type Directory struct {
	store docstore.Store
}

// New constructs a Directory backed by store.
func New(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail returns the id of the user registered with email. When several profiles share
// the address the one with the lowest id wins. Query failures are logged and reported as
// models.ErrNotFound, same as a miss.
func (d *Directory) FindByEmail(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", models.ErrNotFound
	}

	docs, err := d.store.Query(ctx, Users().Where(FieldEmail, email).Limit(1))
	if err != nil {
		logging.FromContext(ctx).Error("search user by email", "email", email, "error", err)
		return "", models.ErrNotFound
	}
	if len(docs) == 0 {
		return "", models.ErrNotFound
	}
	return docs[0].ID(), nil
}

// GetProfile reads users/{uid}.
func (d *Directory) GetProfile(ctx context.Context, uid string) (models.UserProfile, error) {
	if uid == "" {
		return models.UserProfile{}, models.ErrNotFound
	}

	doc, err := d.store.Get(ctx, UserDoc(uid))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return models.UserProfile{}, models.ErrNotFound
		}
		return models.UserProfile{}, fmt.Errorf("get profile %s: %w: %w", uid, models.ErrStore, err)
	}
	return ProfileFromDocument(doc), nil
}

// DisplayName returns the user's full name, or an error if it cannot be resolved or is empty.
func (d *Directory) DisplayName(ctx context.Context, uid string) (string, error) {
	profile, err := d.GetProfile(ctx, uid)
	if err != nil {
		return "", err
	}
	name := profile.FullName()
	if name == "" {
		return "", fmt.Errorf("profile %s has no name: %w", uid, models.ErrNotFound)
	}
	return name, nil
}

// ProfileFromDocument decodes a users/{uid} document.
func ProfileFromDocument(doc docstore.Document) models.UserProfile {
	return models.UserProfile{
		ID:        doc.ID(),
		FirstName: doc.Fields.String(FieldFirstName),
		LastName:  doc.Fields.String(FieldLastName),
		Email:     doc.Fields.String(FieldEmail),
	}
}

// ProfileFields encodes a profile as users/{uid} document fields.
func ProfileFields(p models.UserProfile) docstore.Fields {
	return docstore.Fields{
		FieldFirstName: p.FirstName,
		FieldLastName:  p.LastName,
		FieldEmail:     NormalizeEmail(p.Email),
	}
}
