package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	userCollection       = "users"
	userEmailsCollection = "userEmails"
)

// UserRepository persists accounts in Firestore. Email uniqueness is enforced by a second
// collection keyed by the normalised address, written in the same transaction as the user.
type UserRepository struct {
	users    *pfirestore.Collection[userDocument]
	emails   *pfirestore.Collection[emailDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
		emails:   pfirestore.NewCollection[emailDocument](provider, userEmailsCollection),
		provider: provider,
	}, nil
}

// Create inserts a new user. An existing ID or email surfaces as a conflict (AlreadyExists).
func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	doc := fromDomainUser(user)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef, err := r.users.Ref(ctx, user.ID)
		if err != nil {
			return err
		}
		emailRef, err := r.emails.Ref(ctx, doc.Email)
		if err != nil {
			return err
		}
		if err := tx.Create(emailRef, emailDocument{UserID: user.ID}); err != nil {
			return err
		}
		return tx.Create(userRef, doc)
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.create", err)
	}
	return toDomainUser(user.ID, doc), nil
}

// FindByID loads the user by ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc.ID, doc.Data), nil
}

// FindByEmail resolves the email index and loads the owning user.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	key := strings.TrimSpace(email)
	if key == "" {
		return domain.User{}, errors.New("user repository: email is required")
	}
	index, err := r.emails.Get(ctx, key)
	if err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, index.Data.UserID)
}

// Update overwrites the stored user, moving the email index entry when the address changes.
func (r *UserRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	doc := fromDomainUser(user)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef, err := r.users.Ref(ctx, user.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(userRef)
		if err != nil {
			return err
		}
		current, err := r.users.Decode(snap)
		if err != nil {
			return err
		}
		doc.CreatedAt = current.Data.CreatedAt

		if current.Data.Email != doc.Email {
			newRef, err := r.emails.Ref(ctx, doc.Email)
			if err != nil {
				return err
			}
			oldRef, err := r.emails.Ref(ctx, current.Data.Email)
			if err != nil {
				return err
			}
			if err := tx.Create(newRef, emailDocument{UserID: user.ID}); err != nil {
				return err
			}
			if err := tx.Delete(oldRef); err != nil {
				return err
			}
		}
		return tx.Set(userRef, doc)
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.update", err)
	}
	return toDomainUser(user.ID, doc), nil
}

type userDocument struct {
	FirstName    string    `firestore:"firstName"`
	LastName     string    `firestore:"lastName"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	IsAdmin      bool      `firestore:"isAdmin"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type emailDocument struct {
	UserID string `firestore:"userId"`
}

func fromDomainUser(user domain.User) userDocument {
	return userDocument{
		FirstName:    strings.TrimSpace(user.FirstName),
		LastName:     strings.TrimSpace(user.LastName),
		Email:        strings.TrimSpace(user.Email),
		PasswordHash: user.PasswordHash,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toDomainUser(id string, doc userDocument) domain.User {
	return domain.User{
		ID:           id,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		IsAdmin:      doc.IsAdmin,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
