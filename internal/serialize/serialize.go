package serialize

import (
	"fmt"
	"time"

	"github.com/dkotenko/blogger-back/internal/db"
	"github.com/dkotenko/blogger-back/internal/markdown"
)

// Variant selects the response shape for an entity. List is the lean
// projection used by collection endpoints, Detail the full one.
type Variant int

const (
	VariantList Variant = iota
	VariantDetail
)

type (
	RegisterReq struct {
		Username string `json:"username" validate:"required,max=150"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=12"`
	}

	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	TokenResp struct {
		Token string `json:"token"`
	}

	// ArticleReq is the write contract for articles. The author is never
	// client-supplied; category_id references an existing category or is
	// null to clear it; tag texts are created on the fly when unknown.
	ArticleReq struct {
		Title      string   `json:"title" validate:"required,max=100"`
		Body       string   `json:"body" validate:"required"`
		CategoryID *uint64  `json:"category_id"`
		Tags       []string `json:"tags" validate:"dive,required,max=30"`
	}

	TagReq struct {
		Text string `json:"text" validate:"required,max=30"`
	}

	CategoryReq struct {
		Title string `json:"title" validate:"required,max=100"`
	}

	AuthorResp struct {
		ID       uint64 `json:"id"`
		Username string `json:"username"`
	}

	// ArticleRef is the minimal article projection nested in category
	// detail responses.
	ArticleRef struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}

	// CategoryResp.Articles distinguishes the variants: nil (omitted)
	// on list, present — possibly empty — on detail.
	CategoryResp struct {
		ID       uint64        `json:"id"`
		Title    string        `json:"title"`
		Created  time.Time     `json:"created"`
		Articles *[]ArticleRef `json:"articles,omitempty"`
	}

	TagResp struct {
		ID   uint64 `json:"id"`
		Text string `json:"text"`
	}

	ArticleResp struct {
		ID       uint64        `json:"id"`
		Title    string        `json:"title"`
		Created  time.Time     `json:"created"`
		Updated  time.Time     `json:"updated"`
		Author   *AuthorResp   `json:"author"`
		Category *CategoryResp `json:"category"`
		Tags     []string      `json:"tags"`
		BodyHTML *string       `json:"body_html,omitempty"`
		TOCHTML  *string       `json:"toc_html,omitempty"`
	}
)

// ArticleResponse projects an article. The raw body is write-only and
// never emitted; the detail variant emits its rendered form instead,
// computed here and never stored.
func ArticleResponse(a *db.Article, v Variant, r *markdown.Renderer) (*ArticleResp, error) {
	resp := ArticleResp{
		ID:      a.ID,
		Title:   a.Title,
		Created: a.CreatedAt,
		Updated: a.UpdatedAt,
		Tags:    make([]string, 0, len(a.Tags)),
	}
	for i := range a.Tags {
		resp.Tags = append(resp.Tags, a.Tags[i].Text)
	}
	if a.Author != nil {
		resp.Author = &AuthorResp{
			ID:       a.Author.ID,
			Username: a.Author.Username,
		}
	}
	if a.Category != nil {
		resp.Category = CategoryResponse(a.Category, VariantList)
	}
	if v == VariantDetail {
		html, toc, err := r.Render(a.Body)
		if err != nil {
			return nil, err
		}
		resp.BodyHTML = &html
		resp.TOCHTML = &toc
	}
	return &resp, nil
}

// CategoryResponse projects a category; the detail variant nests
// read-only references to its articles.
func CategoryResponse(c *db.Category, v Variant) *CategoryResp {
	resp := CategoryResp{
		ID:      c.ID,
		Title:   c.Title,
		Created: c.CreatedAt,
	}
	if v == VariantDetail {
		refs := make([]ArticleRef, 0, len(c.Articles))
		for i := range c.Articles {
			refs = append(refs, ArticleRef{
				URL:   ArticleURL(c.Articles[i].ID),
				Title: c.Articles[i].Title,
			})
		}
		resp.Articles = &refs
	}
	return &resp
}

func TagResponse(t *db.Tag) *TagResp {
	return &TagResp{
		ID:   t.ID,
		Text: t.Text,
	}
}

func ArticleURL(id uint64) string {
	return fmt.Sprintf("/article/%d", id)
}
