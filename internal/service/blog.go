package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkotenko/blogger-back/internal/db"
	"github.com/dkotenko/blogger-back/internal/serialize"
)

type Blog struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewBlog(gdb *gorm.DB, l *zap.SugaredLogger) *Blog {
	return &Blog{
		db:     gdb,
		logger: l,
	}
}

// ArticleList returns articles newest-first, optionally narrowed to an
// exact author username match.
func (s *Blog) ArticleList(username string) ([]db.Article, error) {
	q := s.db.
		Preload("Author").
		Preload("Category").
		Preload("Tags").
		Order("created_at DESC")

	if username != "" {
		sql, args, err := squirrel.
			Select("a.id").From("articles a").
			Join("users u ON u.id = a.author_id").
			Where(squirrel.Eq{"u.username": username}).
			ToSql()
		if err != nil {
			return nil, errors.Wrap(err, "build sql")
		}

		ids := make([]uint64, 0)
		res := s.db.Raw(sql, args...).Scan(&ids)
		if res.Error != nil {
			return nil, errors.Wrap(res.Error, "scan author articles")
		}
		if len(ids) == 0 {
			return []db.Article{}, nil
		}
		q = q.Where("id IN ?", ids)
	}

	articles := make([]db.Article, 0)
	res := q.Find(&articles)
	if res.Error != nil {
		return nil, res.Error
	}
	return articles, nil
}

func (s *Blog) ArticleGet(id uint64) (*db.Article, error) {
	article := db.Article{}
	res := s.db.
		Preload("Author").
		Preload("Category").
		Preload("Tags").
		First(&article, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &article, nil
}

// ArticleCreate persists a new article with the requester as author.
// Submitted tag texts are looked up or inserted before linking; the
// category reference is validated first. All of it runs in one
// transaction, so a rejected category_id leaves nothing behind.
func (s *Blog) ArticleCreate(author *db.User, req *serialize.ArticleReq) (*db.Article, error) {
	var article db.Article
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkCategory(tx, req.CategoryID); err != nil {
			return err
		}
		tags, err := ensureTags(tx, req.Tags)
		if err != nil {
			return err
		}

		article = db.Article{
			Title:      req.Title,
			Body:       req.Body,
			AuthorID:   &author.ID,
			CategoryID: req.CategoryID,
			Tags:       tags,
		}
		if res := tx.Create(&article); res.Error != nil {
			return res.Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ArticleGet(article.ID)
}

func (s *Blog) ArticleUpdate(id uint64, req *serialize.ArticleReq) (*db.Article, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		article := db.Article{}
		if res := tx.First(&article, id); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return res.Error
		}

		if err := checkCategory(tx, req.CategoryID); err != nil {
			return err
		}
		tags, err := ensureTags(tx, req.Tags)
		if err != nil {
			return err
		}

		// Map form so a nil category_id writes NULL instead of being
		// skipped as a zero value.
		res := tx.Model(&article).Updates(map[string]interface{}{
			"title":       req.Title,
			"body":        req.Body,
			"category_id": req.CategoryID,
		})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update article")
		}

		if err := tx.Model(&article).Association("Tags").Replace(&tags); err != nil {
			return errors.Wrap(err, "replace tags")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ArticleGet(id)
}

func (s *Blog) ArticleDelete(id uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		article := db.Article{}
		if res := tx.First(&article, id); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return res.Error
		}
		if err := tx.Model(&article).Association("Tags").Clear(); err != nil {
			return errors.Wrap(err, "unlink tags")
		}
		if res := tx.Delete(&article); res.Error != nil {
			return res.Error
		}
		return nil
	})
}

// TagList returns tags newest-first (descending id).
func (s *Blog) TagList() ([]db.Tag, error) {
	tags := make([]db.Tag, 0)
	res := s.db.Order("id DESC").Find(&tags)
	if res.Error != nil {
		return nil, res.Error
	}
	return tags, nil
}

func (s *Blog) TagGet(id uint64) (*db.Tag, error) {
	tag := db.Tag{}
	res := s.db.First(&tag, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &tag, nil
}

func (s *Blog) TagCreate(text string) (*db.Tag, error) {
	tag := db.Tag{Text: text}
	res := s.db.Create(&tag)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, ErrTagExists
		}
		return nil, res.Error
	}
	return &tag, nil
}

func (s *Blog) TagUpdate(id uint64, text string) (*db.Tag, error) {
	tag := db.Tag{}
	res := s.db.First(&tag, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}

	res = s.db.Model(&tag).Update("text", text)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, ErrTagExists
		}
		return nil, res.Error
	}
	return &tag, nil
}

func (s *Blog) TagDelete(id uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		tag := db.Tag{}
		if res := tx.First(&tag, id); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return res.Error
		}
		if err := tx.Model(&tag).Association("Articles").Clear(); err != nil {
			return errors.Wrap(err, "unlink articles")
		}
		if res := tx.Delete(&tag); res.Error != nil {
			return res.Error
		}
		return nil
	})
}

func (s *Blog) CategoryList() ([]db.Category, error) {
	categories := make([]db.Category, 0)
	res := s.db.Find(&categories)
	if res.Error != nil {
		return nil, res.Error
	}
	return categories, nil
}

func (s *Blog) CategoryGet(id uint64) (*db.Category, error) {
	category := db.Category{}
	res := s.db.Preload("Articles").First(&category, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &category, nil
}

func (s *Blog) CategoryCreate(title string) (*db.Category, error) {
	category := db.Category{Title: title}
	res := s.db.Create(&category)
	if res.Error != nil {
		return nil, res.Error
	}
	return &category, nil
}

func (s *Blog) CategoryUpdate(id uint64, title string) (*db.Category, error) {
	category := db.Category{}
	res := s.db.First(&category, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}

	res = s.db.Model(&category).Update("title", title)
	if res.Error != nil {
		return nil, res.Error
	}
	return &category, nil
}

// CategoryDelete removes a category after nulling the reference on every
// article that pointed to it. Articles themselves survive.
func (s *Blog) CategoryDelete(id uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		category := db.Category{}
		if res := tx.First(&category, id); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return res.Error
		}

		res := tx.Model(&db.Article{}).
			Where("category_id = ?", id).
			Update("category_id", nil)
		if res.Error != nil {
			return errors.Wrap(res.Error, "null category references")
		}
		if res := tx.Delete(&category); res.Error != nil {
			return res.Error
		}
		return nil
	})
}

// checkCategory validates a category_id reference. nil means "no
// category" and always passes.
func checkCategory(tx *gorm.DB, id *uint64) error {
	if id == nil {
		return nil
	}
	var count int64
	res := tx.Model(&db.Category{}).Where("id = ?", *id).Count(&count)
	if res.Error != nil {
		return res.Error
	}
	if count == 0 {
		return &CategoryMissingError{ID: *id}
	}
	return nil
}

// ensureTags resolves tag texts to rows, inserting any that do not exist
// yet. Duplicate texts in the input collapse to one row.
func ensureTags(tx *gorm.DB, texts []string) ([]db.Tag, error) {
	tags := make([]db.Tag, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}

		tag, err := ensureTag(tx, text)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *tag)
	}
	return tags, nil
}

func ensureTag(tx *gorm.DB, text string) (*db.Tag, error) {
	tag := db.Tag{}
	res := tx.Where("text = ?", text).First(&tag)
	if res.Error == nil {
		return &tag, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, res.Error
	}
	return insertTag(tx, text)
}

// insertTag inserts with ON CONFLICT DO NOTHING. A raced unique
// violation must not surface as a driver error here: on postgres that
// would abort the surrounding article-write transaction, poisoning the
// recovery lookup. A no-op insert means a concurrent writer won the
// race and the row is re-read instead.
func insertTag(tx *gorm.DB, text string) (*db.Tag, error) {
	tag := db.Tag{Text: text}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tag)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return &tag, nil
	}

	tag = db.Tag{}
	res = tx.Where("text = ?", text).First(&tag)
	if res.Error != nil {
		return nil, res.Error
	}
	return &tag, nil
}
