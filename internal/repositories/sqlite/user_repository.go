package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type userRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	FirstName    string
	LastName     string
	Email        string `gorm:"uniqueIndex;size:320"`
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

// UserRepository stores accounts in the users table; the unique index on email enforces
// uniqueness.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a SQLite-backed user repository.
func NewUserRepository(db *gorm.DB) (*UserRepository, error) {
	if db == nil {
		return nil, errors.New("user repository requires gorm db")
	}
	return &UserRepository{db: db}, nil
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	record := fromDomainUser(user)
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return domain.User{}, wrapError("users.create", err)
	}
	return toDomainUser(record), nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	return r.findOne(ctx, "users.findByID", "id = ?", userID)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, "users.findByEmail", "email = ?", strings.TrimSpace(email))
}

func (r *UserRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	record := fromDomainUser(user)
	res := r.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", record.ID).Updates(map[string]any{
		"first_name":    record.FirstName,
		"last_name":     record.LastName,
		"email":         record.Email,
		"password_hash": record.PasswordHash,
		"is_admin":      record.IsAdmin,
		"updated_at":    record.UpdatedAt,
	})
	if res.Error != nil {
		return domain.User{}, wrapError("users.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.User{}, repositories.NewNotFound("users.update", gorm.ErrRecordNotFound)
	}
	return r.FindByID(ctx, record.ID)
}

func (r *UserRepository) findOne(ctx context.Context, op, query, arg string) (domain.User, error) {
	if arg == "" {
		return domain.User{}, repositories.NewNotFound(op, errors.New("empty lookup key"))
	}
	var record userRecord
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&record).Error; err != nil {
		return domain.User{}, wrapError(op, err)
	}
	return toDomainUser(record), nil
}

func fromDomainUser(user domain.User) userRecord {
	return userRecord{
		ID:           user.ID,
		FirstName:    strings.TrimSpace(user.FirstName),
		LastName:     strings.TrimSpace(user.LastName),
		Email:        strings.TrimSpace(user.Email),
		PasswordHash: user.PasswordHash,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toDomainUser(record userRecord) domain.User {
	return domain.User{
		ID:           record.ID,
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		IsAdmin:      record.IsAdmin,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
