package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkotenko/blogger-back/internal/config"
)

type (
	// BaseModel is gorm.Model without the soft-delete column.
	BaseModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		BaseModel
		Username string `gorm:"uniqueIndex;not null"`
		Email    string `gorm:"uniqueIndex;not null"`
		Password string `gorm:"not null"`
		Token    string `gorm:"not null"`
		IsAdmin  bool   `gorm:"not null;default:false"`
		Articles []Article `gorm:"foreignKey:AuthorID"`
	}

	Article struct {
		BaseModel
		Title      string `gorm:"size:100;not null"`
		Body       string `gorm:"type:text"`
		AuthorID   *uint64
		Author     *User `gorm:"constraint:OnDelete:CASCADE"`
		CategoryID *uint64
		Category   *Category `gorm:"constraint:OnDelete:SET NULL"`
		Tags       []Tag     `gorm:"many2many:article_tags;"`
	}

	Tag struct {
		BaseModel
		Text     string    `gorm:"size:30;not null;uniqueIndex:uidx_tag_text"`
		Articles []Article `gorm:"many2many:article_tags;"`
	}

	Category struct {
		BaseModel
		Title    string `gorm:"size:100;not null"`
		Articles []Article
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: false,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	return gdb, nil
}

// Migrate is separate from NewGormClient so tests can run it against
// an in-memory database.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := gdb.AutoMigrate(&Category{}); err != nil {
		return errors.Wrap(err, "migrate category")
	}
	if err := gdb.AutoMigrate(&Tag{}); err != nil {
		return errors.Wrap(err, "migrate tag")
	}
	if err := gdb.AutoMigrate(&Article{}); err != nil {
		return errors.Wrap(err, "migrate article")
	}
	return nil
}
