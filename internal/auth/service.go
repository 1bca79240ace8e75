package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskhive/server/internal/db"
	"taskhive/server/internal/mailer"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserBanned         = errors.New("user is banned")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Service struct {
	db              *gorm.DB
	tokens          *TokenIssuer
	mail            mailer.Mailer
	refreshTokenTTL time.Duration
	resetTokenTTL   time.Duration
	now             func() time.Time
}

func NewService(gdb *gorm.DB, tokens *TokenIssuer, mail mailer.Mailer, refreshTTL time.Duration) *Service {
	return &Service{
		db:              gdb,
		tokens:          tokens,
		mail:            mail,
		refreshTokenTTL: refreshTTL,
		resetTokenTTL:   time.Hour,
		now:             time.Now,
	}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register creates the user, their role and their conversation singleton in
// one transaction so a partial failure cannot leave an orphaned user.
func (s *Service) Register(name, email, password string) (*db.User, *TokenPair, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC().Unix()
	user := db.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		conv := db.Conversation{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&conv).Error
	})
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issuePair(&user)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

func (s *Service) Login(email, password string) (*db.User, *TokenPair, error) {
	var user db.User
	err := s.db.Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}
	if user.Banned {
		return nil, nil, ErrUserBanned
	}
	pair, err := s.issuePair(&user)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

// Refresh rotates the stored refresh token and issues a fresh access token.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	now := s.now().UTC().Unix()
	var row db.RefreshToken
	err := s.db.Where("token = ? AND revoked_at = 0 AND expires_at > ?", refreshToken, now).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	user, err := s.GetUser(row.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if user.Banned {
		return nil, ErrUserBanned
	}
	if err := s.db.Model(&db.RefreshToken{}).Where("token = ?", row.Token).
		Update("revoked_at", now).Error; err != nil {
		return nil, err
	}
	return s.issuePair(user)
}

// Logout revokes every live refresh token for the user. Access tokens simply
// age out.
func (s *Service) Logout(userID string) error {
	now := s.now().UTC().Unix()
	return s.db.Model(&db.RefreshToken{}).
		Where("user_id = ? AND revoked_at = 0", userID).
		Update("revoked_at", now).Error
}

func (s *Service) GetUser(id string) (*db.User, error) {
	var user db.User
	err := s.db.Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ForgotPassword issues a reset token and mails it. It reports success even
// for unknown addresses so callers cannot enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	var user db.User
	err := s.db.Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := s.now().UTC()
	row := db.PasswordReset{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.resetTokenTTL).Unix(),
		CreatedAt: now.Unix(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return err
	}
	return s.mail.SendPasswordReset(ctx, user.Email, row.Token)
}

func (s *Service) ResetPassword(token, newPassword string) error {
	now := s.now().UTC().Unix()
	var row db.PasswordReset
	err := s.db.Where("token = ? AND used_at = 0 AND expires_at > ?", token, now).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.User{}).Where("id = ?", row.UserID).Updates(map[string]any{
			"password_hash": hash,
			"updated_at":    now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&db.PasswordReset{}).Where("token = ?", row.Token).
			Update("used_at", now).Error
	})
}

func (s *Service) ChangePassword(userID, currentPassword, newPassword string) error {
	user, err := s.GetUser(userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.Model(&db.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash": hash,
		"updated_at":    s.now().UTC().Unix(),
	}).Error
}

func (s *Service) ListUsers() ([]db.User, error) {
	var rows []db.User
	if err := s.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) SetBanned(userID string, banned bool) (*db.User, error) {
	res := s.db.Model(&db.User{}).Where("id = ?", userID).Updates(map[string]any{
		"banned":     banned,
		"updated_at": s.now().UTC().Unix(),
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUser(userID)
}

func (s *Service) issuePair(user *db.User) (*TokenPair, error) {
	access, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	refresh := db.RefreshToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.refreshTokenTTL).Unix(),
		CreatedAt: now.Unix(),
	}
	if err := s.db.Create(&refresh).Error; err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
	}, nil
}
