package service

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/dkotenko/blogger-back/internal/db"
)

type Auth struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewAuth(gdb *gorm.DB, l *zap.SugaredLogger) *Auth {
	return &Auth{
		db:     gdb,
		logger: l,
	}
}

// Register creates a regular (non-admin) user and returns its API token.
// The admin flag is never set through the API.
func (s *Auth) Register(username, email, pass string) (string, error) {
	hash, err := s.bcryptGen(pass)
	if err != nil {
		return "", errors.Wrap(err, "bcryptGen")
	}
	token := uuid.New().String()
	res := s.db.Create(&db.User{
		Username: username,
		Email:    email,
		Password: hash,
		Token:    token,
	})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return "", ErrUserExists
		}
		return "", res.Error
	}
	return token, nil
}

func (s *Auth) Login(email, pass string) (string, error) {
	user := db.User{}
	res := s.db.Where("email = ?", email).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return "", ErrLoginUserNotFound
		}
		return "", res.Error
	}

	if err := s.bcryptCheck(user.Password, pass); err != nil {
		return "", ErrLoginPasswordDoesNotMatch
	}

	token := uuid.New().String()
	res = s.db.Model(&user).Update("token", token)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "update token")
	}

	return token, nil
}

// UserByToken resolves the requester identity for the auth middleware.
func (s *Auth) UserByToken(token string) (*db.User, error) {
	user := db.User{}
	res := s.db.Where("token = ?", token).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrLoginUserNotFound
		}
		return nil, res.Error
	}
	return &user, nil
}

// UserDelete removes a user and, with it, every article they authored.
// Asymmetric with category deletion, which only nulls the reference.
func (s *Auth) UserDelete(id uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		user := db.User{}
		if res := tx.First(&user, id); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return res.Error
		}

		res := tx.Exec(
			"DELETE FROM article_tags WHERE article_id IN (SELECT id FROM articles WHERE author_id = ?)",
			id,
		)
		if res.Error != nil {
			return errors.Wrap(res.Error, "unlink article tags")
		}
		res = tx.Where("author_id = ?", id).Delete(&db.Article{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete authored articles")
		}
		res = tx.Delete(&user)
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete user")
		}
		return nil
	})
}

func (s *Auth) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), 14)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *Auth) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}
