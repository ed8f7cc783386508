package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dkotenko/blogger-back/internal/db"
	"github.com/dkotenko/blogger-back/internal/serialize"
)

func TestArticleCreateWithNewTags(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	article, err := blog.ArticleCreate(author, &serialize.ArticleReq{
		Title: "First",
		Body:  "hello",
		Tags:  []string{"go", "systems"},
	})
	require.Nil(t, err)

	assert.Equal(t, "First", article.Title)
	require.NotNil(t, article.Author)
	assert.Equal(t, "alice", article.Author.Username)
	assert.Len(t, article.Tags, 2)

	var tagCount int64
	require.Nil(t, gdb.Model(&db.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(2), tagCount)
}

func TestArticleUpdateReusesExistingTags(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	article, err := blog.ArticleCreate(author, &serialize.ArticleReq{
		Title: "First",
		Body:  "hello",
		Tags:  []string{"go", "systems"},
	})
	require.Nil(t, err)

	// Same texts again: no new rows, links intact.
	updated, err := blog.ArticleUpdate(article.ID, &serialize.ArticleReq{
		Title: "First, edited",
		Body:  "hello again",
		Tags:  []string{"go", "systems"},
	})
	require.Nil(t, err)

	assert.Equal(t, "First, edited", updated.Title)
	assert.Len(t, updated.Tags, 2)

	var tagCount int64
	require.Nil(t, gdb.Model(&db.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(2), tagCount)
}

func TestArticleUpdateRefreshesTimestamp(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	past := time.Now().Add(-24 * time.Hour)
	article := db.Article{
		BaseModel: db.BaseModel{CreatedAt: past, UpdatedAt: past},
		Title:     "Old",
		AuthorID:  &author.ID,
	}
	require.Nil(t, gdb.Create(&article).Error)

	updated, err := blog.ArticleUpdate(article.ID, &serialize.ArticleReq{Title: "New"})
	require.Nil(t, err)

	assert.True(t, updated.UpdatedAt.After(past))
}

func TestArticleCreateRejectsMissingCategory(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	missing := uint64(9999)
	_, err := blog.ArticleCreate(author, &serialize.ArticleReq{
		Title:      "First",
		CategoryID: &missing,
	})
	require.NotNil(t, err)

	var catErr *CategoryMissingError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, uint64(9999), catErr.ID)
	assert.Contains(t, err.Error(), "9999")

	// Nothing was written.
	var articleCount int64
	require.Nil(t, gdb.Model(&db.Article{}).Count(&articleCount).Error)
	assert.Equal(t, int64(0), articleCount)
}

func TestArticleUpdateClearsCategory(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	category, err := blog.CategoryCreate("General")
	require.Nil(t, err)

	article, err := blog.ArticleCreate(author, &serialize.ArticleReq{
		Title:      "First",
		CategoryID: &category.ID,
	})
	require.Nil(t, err)
	require.NotNil(t, article.Category)

	cleared, err := blog.ArticleUpdate(article.ID, &serialize.ArticleReq{
		Title:      "First",
		CategoryID: nil,
	})
	require.Nil(t, err)

	assert.Nil(t, cleared.CategoryID)
	assert.Nil(t, cleared.Category)
}

func TestCategoryDeleteNullsArticleReferences(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	category, err := blog.CategoryCreate("General")
	require.Nil(t, err)

	article, err := blog.ArticleCreate(author, &serialize.ArticleReq{
		Title:      "First",
		CategoryID: &category.ID,
	})
	require.Nil(t, err)

	require.Nil(t, blog.CategoryDelete(category.ID))

	survivor, err := blog.ArticleGet(article.ID)
	require.Nil(t, err)
	assert.Nil(t, survivor.CategoryID)

	var categoryCount int64
	require.Nil(t, gdb.Model(&db.Category{}).Count(&categoryCount).Error)
	assert.Equal(t, int64(0), categoryCount)
}

func TestArticleListOrderAndFilter(t *testing.T) {
	blog, gdb := newTestBlog(t)
	alice := seedUser(t, gdb, "alice")
	bob := seedUser(t, gdb, "bob")

	older := db.Article{
		BaseModel: db.BaseModel{CreatedAt: time.Now().Add(-time.Hour)},
		Title:     "older",
		AuthorID:  &alice.ID,
	}
	newer := db.Article{
		BaseModel: db.BaseModel{CreatedAt: time.Now()},
		Title:     "newer",
		AuthorID:  &bob.ID,
	}
	require.Nil(t, gdb.Create(&older).Error)
	require.Nil(t, gdb.Create(&newer).Error)

	all, err := blog.ArticleList("")
	require.Nil(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].Title)
	assert.Equal(t, "older", all[1].Title)

	onlyAlice, err := blog.ArticleList("alice")
	require.Nil(t, err)
	require.Len(t, onlyAlice, 1)
	assert.Equal(t, "older", onlyAlice[0].Title)

	none, err := blog.ArticleList("nobody")
	require.Nil(t, err)
	assert.Empty(t, none)
}

func TestArticleDeleteUnlinksTags(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	article, err := blog.ArticleCreate(author, &serialize.ArticleReq{
		Title: "First",
		Tags:  []string{"go"},
	})
	require.Nil(t, err)

	require.Nil(t, blog.ArticleDelete(article.ID))

	_, err = blog.ArticleGet(article.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The tag row itself survives the article.
	var tagCount int64
	require.Nil(t, gdb.Model(&db.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(1), tagCount)
}

func TestInsertTagToleratesExistingRow(t *testing.T) {
	blog, gdb := newTestBlog(t)

	existing, err := blog.TagCreate("go")
	require.Nil(t, err)

	// The state a lost insert race leaves behind: the row is already
	// there when the insert runs. It must come back as a no-op plus
	// re-read, never as a driver error that would abort an enclosing
	// postgres transaction.
	require.Nil(t, gdb.Transaction(func(tx *gorm.DB) error {
		tag, err := insertTag(tx, "go")
		require.Nil(t, err)
		assert.Equal(t, existing.ID, tag.ID)

		// The transaction is still usable afterwards.
		var count int64
		require.Nil(t, tx.Model(&db.Tag{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
		return nil
	}))

	var tagCount int64
	require.Nil(t, gdb.Model(&db.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(1), tagCount)
}

func TestTagCreateDuplicateText(t *testing.T) {
	blog, _ := newTestBlog(t)

	_, err := blog.TagCreate("go")
	require.Nil(t, err)

	_, err = blog.TagCreate("go")
	assert.ErrorIs(t, err, ErrTagExists)
}

func TestTagUpdateDuplicateText(t *testing.T) {
	blog, _ := newTestBlog(t)

	_, err := blog.TagCreate("go")
	require.Nil(t, err)
	other, err := blog.TagCreate("rust")
	require.Nil(t, err)

	_, err = blog.TagUpdate(other.ID, "go")
	assert.ErrorIs(t, err, ErrTagExists)
}

func TestTagListNewestFirst(t *testing.T) {
	blog, _ := newTestBlog(t)

	_, err := blog.TagCreate("first")
	require.Nil(t, err)
	_, err = blog.TagCreate("second")
	require.Nil(t, err)

	tags, err := blog.TagList()
	require.Nil(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "second", tags[0].Text)
	assert.Equal(t, "first", tags[1].Text)
}

func TestNotFoundErrors(t *testing.T) {
	blog, _ := newTestBlog(t)

	_, err := blog.ArticleGet(12345)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = blog.TagGet(12345)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = blog.CategoryGet(12345)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, blog.ArticleDelete(12345), ErrNotFound)
	assert.ErrorIs(t, blog.TagDelete(12345), ErrNotFound)
	assert.ErrorIs(t, blog.CategoryDelete(12345), ErrNotFound)
}

func TestCategoryGetNestsArticles(t *testing.T) {
	blog, gdb := newTestBlog(t)
	author := seedUser(t, gdb, "alice")

	category, err := blog.CategoryCreate("General")
	require.Nil(t, err)

	_, err = blog.ArticleCreate(author, &serialize.ArticleReq{
		Title:      "First",
		CategoryID: &category.ID,
	})
	require.Nil(t, err)

	detail, err := blog.CategoryGet(category.ID)
	require.Nil(t, err)
	require.Len(t, detail.Articles, 1)
	assert.Equal(t, "First", detail.Articles[0].Title)
}
