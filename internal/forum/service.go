package forum

import (
	"context"
	"errors"
	"strings"

	"github.com/vyrodovalexey/avaforum/internal/auth"
	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/pipeline/validators"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Service implements the forum request handlers.
type Service struct {
	repo        Repository
	currentUser auth.CurrentUser
}

// NewService creates a Service.
func NewService(repo Repository, currentUser auth.CurrentUser) *Service {
	if currentUser == nil {
		currentUser = auth.ContextUser{}
	}
	return &Service{repo: repo, currentUser: currentUser}
}

// GetPost handles GetPostQuery.
func (s *Service) GetPost(ctx context.Context, q GetPostQuery) (*Post, error) {
	return s.repo.Get(ctx, q.ID)
}

// ListPosts handles ListPostsQuery.
func (s *Service) ListPosts(ctx context.Context, q ListPostsQuery) (*Page, error) {
	return s.repo.List(ctx, q.Page, q.PageSize)
}

// CreatePost handles CreatePostCommand.
func (s *Service) CreatePost(ctx context.Context, c CreatePostCommand) (*Post, error) {
	userID, ok := s.currentUser.UserID(ctx)
	if !ok {
		return nil, util.NewUnauthorizedError("sign in to post")
	}
	return s.repo.Create(ctx, Post{Title: strings.TrimSpace(c.Title), Body: c.Body, AuthorID: userID})
}

// UpdatePost handles UpdatePostCommand.
func (s *Service) UpdatePost(ctx context.Context, c UpdatePostCommand) (*Post, error) {
	if err := s.authorize(ctx, c.ID); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, Post{ID: c.ID, Title: strings.TrimSpace(c.Title), Body: c.Body})
}

// DeletePost handles DeletePostCommand.
func (s *Service) DeletePost(ctx context.Context, c DeletePostCommand) (*Deleted, error) {
	if err := s.authorize(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		return nil, err
	}
	return &Deleted{ID: c.ID}, nil
}

// authorize allows only the author to change a post.
func (s *Service) authorize(ctx context.Context, id string) error {
	userID, ok := s.currentUser.UserID(ctx)
	if !ok {
		return util.NewUnauthorizedError("sign in to change posts")
	}
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != userID {
		return util.NewUnauthorizedError("only the author may change this post")
	}
	return nil
}

func notBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return "must not be blank"
	}
	return ""
}

// Register adds the forum validators to exec and registers one pipeline per
// request type on d.
func Register(d *pipeline.Dispatcher, exec *pipeline.Executor, s *Service) error {
	reg := exec.Validators()
	pipeline.RegisterValidator(reg, validators.Struct[GetPostQuery]())
	pipeline.RegisterValidator(reg, validators.Struct[ListPostsQuery]())
	pipeline.RegisterValidator(reg, validators.Struct[CreatePostCommand]())
	pipeline.RegisterValidator(reg, validators.Func("title",
		func(c CreatePostCommand) any { return c.Title },
		func(c CreatePostCommand) string { return notBlank(c.Title) }))
	pipeline.RegisterValidator(reg, validators.Struct[UpdatePostCommand]())
	pipeline.RegisterValidator(reg, validators.Func("title",
		func(c UpdatePostCommand) any { return c.Title },
		func(c UpdatePostCommand) string { return notBlank(c.Title) }))
	pipeline.RegisterValidator(reg, validators.Struct[DeletePostCommand]())

	return errors.Join(
		pipeline.Handle(d, exec, s.GetPost),
		pipeline.Handle(d, exec, s.ListPosts),
		pipeline.Handle(d, exec, s.CreatePost),
		pipeline.Handle(d, exec, s.UpdatePost),
		pipeline.Handle(d, exec, s.DeletePost),
	)
}
