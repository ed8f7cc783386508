package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkotenko/blogger-back/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	gdb, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.Nil(t, err)
	require.Nil(t, db.Migrate(gdb))

	return gdb
}

func newTestBlog(t *testing.T) (*Blog, *gorm.DB) {
	t.Helper()

	gdb := newTestDB(t)
	return NewBlog(gdb, zap.NewNop().Sugar()), gdb
}

func newTestAuth(t *testing.T) (*Auth, *gorm.DB) {
	t.Helper()

	gdb := newTestDB(t)
	return NewAuth(gdb, zap.NewNop().Sugar()), gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, username string) *db.User {
	t.Helper()

	user := db.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "irrelevant",
		Token:    "token-" + username,
	}
	require.Nil(t, gdb.Create(&user).Error)
	return &user
}
