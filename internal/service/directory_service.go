package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robcowart/certproof/internal/auth"
	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/database/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Seed is the directory content loaded at startup
type Seed struct {
	Universities []SeedAccount `yaml:"universities"`
	Students     []SeedAccount `yaml:"students"`
}

// SeedAccount is one directory entry. A student without a password is
// known to the directory but cannot sign in
type SeedAccount struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// LoadSeedFile reads a directory seed from a YAML file
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// DirectoryService is the university and student directory
type DirectoryService struct {
	db     *database.Database
	cfg    *config.Config
	logger *zap.Logger
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(db *database.Database, cfg *config.Config, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{
		db:     db,
		cfg:    cfg,
		logger: logger.With(zap.String("service", "directory")),
	}
}

// ApplySeed upserts every seeded account. Re-applying an unchanged seed
// keeps the stored password hashes
func (s *DirectoryService) ApplySeed(ctx context.Context, seed *Seed) error {
	for i, a := range seed.Universities {
		email, name, err := normalizeAccount(a)
		if err != nil {
			return fmt.Errorf("universities[%d]: %w", i, err)
		}
		if err := auth.ValidatePasswordStrength(a.Password); err != nil {
			return fmt.Errorf("universities[%d]: weak password: %w", i, err)
		}

		var existing string
		if u, err := s.db.GetUniversity(ctx, email); err == nil {
			existing = u.PasswordHash
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to load university %s: %w", email, err)
		}

		hash, err := keepOrHash(a.Password, existing)
		if err != nil {
			return fmt.Errorf("universities[%d]: %w", i, err)
		}

		err = s.db.UpsertUniversity(ctx, &models.University{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to store university %s: %w", email, err)
		}
	}

	for i, a := range seed.Students {
		email, name, err := normalizeAccount(a)
		if err != nil {
			return fmt.Errorf("students[%d]: %w", i, err)
		}

		var hash string
		if a.Password != "" {
			if err := auth.ValidatePasswordStrength(a.Password); err != nil {
				return fmt.Errorf("students[%d]: weak password: %w", i, err)
			}

			var existing string
			if st, err := s.db.GetStudent(ctx, email); err == nil {
				existing = st.PasswordHash
			} else if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to load student %s: %w", email, err)
			}

			if hash, err = keepOrHash(a.Password, existing); err != nil {
				return fmt.Errorf("students[%d]: %w", i, err)
			}
		}

		err = s.db.UpsertStudent(ctx, &models.Student{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to store student %s: %w", email, err)
		}
	}

	s.logger.Info("Directory seeded",
		zap.Int("universities", len(seed.Universities)),
		zap.Int("students", len(seed.Students)),
	)
	return nil
}

func normalizeAccount(a SeedAccount) (string, string, error) {
	email, err := canonical.NormalizeEmail(a.Email)
	if err != nil {
		return "", "", fmt.Errorf("email: %w", err)
	}
	name, err := canonical.NormalizeText(a.Name)
	if err != nil {
		return "", "", fmt.Errorf("name: %w", err)
	}
	return email, name, nil
}

func keepOrHash(password, existing string) (string, error) {
	if existing != "" && auth.VerifyPassword(password, existing) == nil {
		return existing, nil
	}
	return auth.HashPassword(password)
}

// LoginUniversity checks a university's credentials and issues a session token
func (s *DirectoryService) LoginUniversity(ctx context.Context, email, password string) (string, *models.University, error) {
	email, err := canonical.NormalizeEmail(email)
	if err != nil {
		_ = auth.RejectUnknown(password)
		return "", nil, unauthenticated("invalid credentials")
	}

	u, err := s.db.GetUniversity(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		_ = auth.RejectUnknown(password)
		return "", nil, unauthenticated("invalid credentials")
	}
	if err != nil {
		return "", nil, transient("failed to load university", err)
	}

	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		s.logger.Warn("University login failed", zap.String("university", email))
		return "", nil, unauthenticated("invalid credentials")
	}

	token, err := s.token(auth.RoleUniversity, u.Email, u.Name)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// LoginStudent checks a student's credentials and issues a session token
func (s *DirectoryService) LoginStudent(ctx context.Context, email, password string) (string, *models.Student, error) {
	email, err := canonical.NormalizeEmail(email)
	if err != nil {
		_ = auth.RejectUnknown(password)
		return "", nil, unauthenticated("invalid credentials")
	}

	st, err := s.db.GetStudent(ctx, email)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && st.PasswordHash == "") {
		_ = auth.RejectUnknown(password)
		return "", nil, unauthenticated("invalid credentials")
	}
	if err != nil {
		return "", nil, transient("failed to load student", err)
	}

	if err := auth.VerifyPassword(password, st.PasswordHash); err != nil {
		s.logger.Warn("Student login failed", zap.String("student", email))
		return "", nil, unauthenticated("invalid credentials")
	}

	token, err := s.token(auth.RoleStudent, st.Email, st.Name)
	if err != nil {
		return "", nil, err
	}
	return token, st, nil
}

func (s *DirectoryService) token(role, email, name string) (string, error) {
	token, err := auth.GenerateToken(role, email, name, s.cfg.JWT.Secret, s.cfg.JWT.Issuer, s.cfg.JWT.Expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// StudentExists reports whether the student directory knows email
func (s *DirectoryService) StudentExists(ctx context.Context, email string) (bool, error) {
	exists, err := s.db.StudentExists(ctx, email)
	if err != nil {
		return false, transient("failed to look up student", err)
	}
	return exists, nil
}

// GetUniversity retrieves a university by email
func (s *DirectoryService) GetUniversity(ctx context.Context, email string) (*models.University, error) {
	u, err := s.db.GetUniversity(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("university not found")
	}
	if err != nil {
		return nil, transient("failed to load university", err)
	}
	return u, nil
}

// GetStudent retrieves a student by email
func (s *DirectoryService) GetStudent(ctx context.Context, email string) (*models.Student, error) {
	st, err := s.db.GetStudent(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("student not found")
	}
	if err != nil {
		return nil, transient("failed to load student", err)
	}
	return st, nil
}

// ListStudents returns the student directory
func (s *DirectoryService) ListStudents(ctx context.Context) ([]*models.Student, error) {
	students, err := s.db.ListStudents(ctx)
	if err != nil {
		return nil, transient("failed to list students", err)
	}
	return students, nil
}
