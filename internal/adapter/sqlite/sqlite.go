// Package sqlite implements the domain repositories on an embedded SQLite
// database through gorm, for single-binary deployments.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"accounts/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// userRecord is the users table row.
type userRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:64;not null;default:''"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:16;not null;default:'Guest'"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func (r *userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		CreatedAt:    r.CreatedAt,
	}
}

// sessionRecord is the sessions table row.
type sessionRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Token      string    `gorm:"size:64;uniqueIndex;not null"`
	UserID     int64     `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	ValidUntil time.Time `gorm:"index;not null"`

	User userRecord `gorm:"constraint:OnDelete:CASCADE"`
}

func (sessionRecord) TableName() string { return "sessions" }

func (r *sessionRecord) toDomain() *domain.Session {
	return &domain.Session{
		ID:         r.ID,
		Token:      r.Token,
		UserID:     r.UserID,
		CreatedAt:  r.CreatedAt,
		ValidUntil: r.ValidUntil,
	}
}

// DB implements domain.UserRepository on SQLite.
type DB struct {
	gorm *gorm.DB
}

var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, logQueries bool) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(path+"?"+connParams, logQueries)
}

// OpenMemory opens a private in-memory database, mainly for tests.
func OpenMemory(name string) (*DB, error) {
	return open(fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", name, connParams), false)
}

// connParams are applied by the driver to every new connection, so they
// survive the pool recycling connections.
const connParams = "_foreign_keys=1&_journal_mode=WAL"

func open(dsn string, logQueries bool) (*DB, error) {
	gormLogger := logger.Default
	if !logQueries {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	g, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent requests.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	var fk int
	if err := g.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("check foreign keys: %w", err)
	}
	if fk != 1 {
		_ = sqlDB.Close()
		return nil, errors.New("sqlite: foreign keys are not enabled")
	}

	if err := g.AutoMigrate(&userRecord{}, &sessionRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{gorm: g}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) firstUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var rec userRecord
	err := d.gorm.WithContext(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// GetByEmail retrieves a user by email.
func (d *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return d.firstUser(ctx, "email = ?", email)
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return d.firstUser(ctx, "id = ?", id)
}

// Create creates a new user.
func (d *DB) Create(ctx context.Context, username, email, passwordHash string, role domain.Role) (*domain.User, error) {
	rec := userRecord{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         string(role),
		CreatedAt:    time.Now().UTC(),
	}
	err := d.gorm.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Update applies the non-nil fields of upd.
func (d *DB) Update(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	changes := map[string]any{}
	if upd.Email != nil {
		changes["email"] = *upd.Email
	}
	if upd.PasswordHash != nil {
		changes["password_hash"] = *upd.PasswordHash
	}

	var out *domain.User
	err := d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			res := tx.Model(&userRecord{}).Where("id = ?", id).Updates(changes)
			if res.Error != nil {
				return res.Error
			}
		}
		var rec userRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			return err
		}
		out = rec.toDomain()
		return nil
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, domain.ErrEmailTaken
	case err != nil:
		return nil, err
	}
	return out, nil
}

// Delete deletes a user and their sessions.
func (d *DB) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&userRecord{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// SessionRepo implements session persistence on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	rec := sessionRecord{
		Token:      s.Token,
		UserID:     s.UserID,
		CreatedAt:  s.CreatedAt.UTC(),
		ValidUntil: s.ValidUntil.UTC(),
	}
	if err := r.db.gorm.WithContext(ctx).Omit("User").Create(&rec).Error; err != nil {
		return err
	}
	s.ID = rec.ID
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var rec sessionRecord
	err := r.db.gorm.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Invalidate sets valid_until to now for a session that is still valid.
func (r *SessionRepo) Invalidate(ctx context.Context, token string, now time.Time) (bool, error) {
	now = now.UTC()
	res := r.db.gorm.WithContext(ctx).Model(&sessionRecord{}).
		Where("token = ? AND valid_until > ?", token, now).
		Update("valid_until", now)
	return res.RowsAffected > 0, res.Error
}

// HasValid reports whether the user holds a session valid at now.
func (r *SessionRepo) HasValid(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var n int64
	err := r.db.gorm.WithContext(ctx).Model(&sessionRecord{}).
		Where("user_id = ? AND valid_until > ?", userID, now.UTC()).
		Count(&n).Error
	return n > 0, err
}

// DeleteByUser deletes all sessions of a user.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID int64) error {
	return r.db.gorm.WithContext(ctx).Where("user_id = ?", userID).Delete(&sessionRecord{}).Error
}

// DeleteInvalidBefore deletes sessions whose valid_until is before cutoff.
func (r *SessionRepo) DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.gorm.WithContext(ctx).Where("valid_until < ?", cutoff.UTC()).Delete(&sessionRecord{})
	return res.RowsAffected, res.Error
}
