package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dkotenko/blogger-back/internal/config"
	"github.com/dkotenko/blogger-back/internal/db"
	"github.com/dkotenko/blogger-back/internal/markdown"
	"github.com/dkotenko/blogger-back/internal/policy"
	"github.com/dkotenko/blogger-back/internal/serialize"
	"github.com/dkotenko/blogger-back/internal/service"
)

type (
	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		echo     *echo.Echo
		auth     *service.Auth
		blog     *service.Blog
		renderer *markdown.Renderer
		logger   *zap.SugaredLogger
	}
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, auth *service.Auth, blog *service.Blog, renderer *markdown.Renderer, logger *zap.SugaredLogger) *HTTPServer {
	e := echo.New()

	instance := HTTPServer{
		echo:     e,
		auth:     auth,
		blog:     blog,
		renderer: renderer,
		logger:   logger,
	}

	e.POST("/auth/register", instance.Register)
	e.POST("/auth/login", instance.Login)

	articleG := e.Group("/article")
	articleG.GET("", instance.ArticleList)
	articleG.POST("", instance.ArticleCreate)
	articleG.GET("/:id", instance.ArticleGet)
	articleG.PATCH("/:id", instance.ArticleUpdate)
	articleG.DELETE("/:id", instance.ArticleDelete)

	categoryG := e.Group("/category")
	categoryG.GET("", instance.CategoryList)
	categoryG.POST("", instance.CategoryCreate)
	categoryG.GET("/:id", instance.CategoryGet)
	categoryG.PATCH("/:id", instance.CategoryUpdate)
	categoryG.DELETE("/:id", instance.CategoryDelete)

	tagG := e.Group("/tag")
	tagG.GET("", instance.TagList)
	tagG.POST("", instance.TagCreate)
	tagG.GET("/:id", instance.TagGet)
	tagG.PATCH("/:id", instance.TagUpdate)
	tagG.DELETE("/:id", instance.TagDelete)

	e.DELETE("/user/:id", instance.UserDelete)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Path(), "/auth/")
		},
		Handler: func(c echo.Context, reqBody, resBody []byte) {
			logger.Debugw("auth request", "path", c.Path(), "body", string(censorBody(reqBody)))
		},
	}))

	e.Use(instance.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return &instance
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := serialize.RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.auth.Register(req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusCreated, &serialize.TokenResp{Token: token})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := serialize.LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrLoginUserNotFound) || errors.Is(err, service.ErrLoginPasswordDoesNotMatch) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	return c.JSON(http.StatusOK, &serialize.TokenResp{Token: token})
}

func (s *HTTPServer) ArticleList(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionList, policy.AdminOrReadOnly); err != nil {
		return err
	}

	articles, err := s.blog.ArticleList(c.QueryParam("username"))
	if err != nil {
		return mapServiceError(err)
	}

	resp := make([]*serialize.ArticleResp, 0, len(articles))
	for i := range articles {
		item, err := serialize.ArticleResponse(&articles[i], serialize.VariantList, s.renderer)
		if err != nil {
			return err
		}
		resp = append(resp, item)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) ArticleGet(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionRetrieve, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	article, err := s.blog.ArticleGet(id)
	if err != nil {
		return mapServiceError(err)
	}
	return s.articleJSON(c, http.StatusOK, article)
}

func (s *HTTPServer) ArticleCreate(c echo.Context) error {
	// Any authenticated user may publish; the server assigns them as
	// author. Update and delete stay admin-only.
	user, err := s.authorize(c, policy.ActionCreate, policy.AuthenticatedOrReadOnly)
	if err != nil {
		return err
	}

	req := serialize.ArticleReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	article, err := s.blog.ArticleCreate(user, &req)
	if err != nil {
		return mapServiceError(err)
	}
	return s.articleJSON(c, http.StatusCreated, article)
}

func (s *HTTPServer) ArticleUpdate(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionUpdate, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := serialize.ArticleReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	article, err := s.blog.ArticleUpdate(id, &req)
	if err != nil {
		return mapServiceError(err)
	}
	return s.articleJSON(c, http.StatusOK, article)
}

func (s *HTTPServer) ArticleDelete(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionDelete, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.blog.ArticleDelete(id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) CategoryList(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionList, policy.AdminOrReadOnly); err != nil {
		return err
	}

	categories, err := s.blog.CategoryList()
	if err != nil {
		return mapServiceError(err)
	}

	resp := make([]*serialize.CategoryResp, 0, len(categories))
	for i := range categories {
		resp = append(resp, serialize.CategoryResponse(&categories[i], serialize.VariantList))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) CategoryGet(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionRetrieve, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	category, err := s.blog.CategoryGet(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, serialize.CategoryResponse(category, serialize.VariantDetail))
}

func (s *HTTPServer) CategoryCreate(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionCreate, policy.AdminOrReadOnly); err != nil {
		return err
	}

	req := serialize.CategoryReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	category, err := s.blog.CategoryCreate(req.Title)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, serialize.CategoryResponse(category, serialize.VariantList))
}

func (s *HTTPServer) CategoryUpdate(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionUpdate, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := serialize.CategoryReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	category, err := s.blog.CategoryUpdate(id, req.Title)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, serialize.CategoryResponse(category, serialize.VariantList))
}

func (s *HTTPServer) CategoryDelete(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionDelete, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.blog.CategoryDelete(id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) TagList(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionList, policy.AdminOrReadOnly); err != nil {
		return err
	}

	tags, err := s.blog.TagList()
	if err != nil {
		return mapServiceError(err)
	}

	resp := make([]*serialize.TagResp, 0, len(tags))
	for i := range tags {
		resp = append(resp, serialize.TagResponse(&tags[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) TagGet(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionRetrieve, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	tag, err := s.blog.TagGet(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, serialize.TagResponse(tag))
}

func (s *HTTPServer) TagCreate(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionCreate, policy.AdminOrReadOnly); err != nil {
		return err
	}

	req := serialize.TagReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	tag, err := s.blog.TagCreate(req.Text)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, serialize.TagResponse(tag))
}

func (s *HTTPServer) TagUpdate(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionUpdate, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := serialize.TagReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	tag, err := s.blog.TagUpdate(id, req.Text)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, serialize.TagResponse(tag))
}

func (s *HTTPServer) TagDelete(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionDelete, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.blog.TagDelete(id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) UserDelete(c echo.Context) error {
	if _, err := s.authorize(c, policy.ActionDelete, policy.AdminOrReadOnly); err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.auth.UserDelete(id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AuthMiddleware resolves the x-token header to a user when present.
// Anonymous requests pass through; the policy layer rejects writes.
func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := ""
		for key, values := range c.Request().Header {
			if strings.ToLower(key) == "x-token" {
				token = values[0]
				break
			}
		}
		if token == "" {
			return next(c)
		}

		user, err := s.auth.UserByToken(token)
		if err != nil {
			if errors.Is(err, service.ErrLoginUserNotFound) {
				return c.NoContent(http.StatusUnauthorized)
			}
			s.logger.Errorw("resolve token", "error", err)
			return c.NoContent(http.StatusInternalServerError)
		}

		c.Set("user", user)
		return next(c)
	}
}

func (s *HTTPServer) authorize(c echo.Context, action policy.Action, check func(*db.User, policy.Action) error) (*db.User, error) {
	user := UserFromContext(c)
	if err := check(user, action); err != nil {
		if errors.Is(err, policy.ErrUnauthenticated) {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return nil, echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return user, nil
}

func (s *HTTPServer) articleJSON(c echo.Context, code int, article *db.Article) error {
	resp, err := serialize.ArticleResponse(article, serialize.VariantDetail, s.renderer)
	if err != nil {
		return err
	}
	return c.JSON(code, resp)
}

////////

func mapServiceError(err error) error {
	var catErr *service.CategoryMissingError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound)
	case errors.Is(err, service.ErrTagExists):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &catErr):
		return echo.NewHTTPError(http.StatusBadRequest, catErr.Error())
	}
	return err
}

func censorBody(b []byte) []byte {
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return b
	}
	if _, ok := m["password"]; !ok {
		return b
	}
	m["password"] = "$censored"
	out, err := json.Marshal(m)
	if err != nil {
		return b
	}
	return out
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func UserFromContext(c echo.Context) *db.User {
	user, _ := c.Get("user").(*db.User)
	return user
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return vv, nil
}
