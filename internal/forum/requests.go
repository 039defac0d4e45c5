package forum

import (
	"strconv"
	"time"
)

// Cache key layout.
const (
	postKeyPrefix = "post:"
	pagesPattern  = "posts:*"
	pagesTTL      = 30 * time.Second
)

// PostKey is the pipeline cache key of one post.
func PostKey(id string) string {
	return postKeyPrefix + id
}

// GetPostQuery reads one post.
type GetPostQuery struct {
	ID string `json:"id" validate:"required,uuid"`
}

// IsQuery implements pipeline.Query.
func (GetPostQuery) IsQuery() {}

// CacheKey implements pipeline.Cacheable.
func (q GetPostQuery) CacheKey() string { return PostKey(q.ID) }

// CacheTTL implements pipeline.Cacheable. Zero selects the executor default.
func (GetPostQuery) CacheTTL() time.Duration { return 0 }

// ListPostsQuery reads one page of posts.
type ListPostsQuery struct {
	Page     int `json:"page" validate:"min=1"`
	PageSize int `json:"pageSize" validate:"min=1,max=100"`
}

// IsQuery implements pipeline.Query.
func (ListPostsQuery) IsQuery() {}

// CacheKey implements pipeline.Cacheable.
func (q ListPostsQuery) CacheKey() string {
	return "posts:page:" + strconv.Itoa(q.Page) + ":" + strconv.Itoa(q.PageSize)
}

// CacheTTL implements pipeline.Cacheable.
func (ListPostsQuery) CacheTTL() time.Duration { return pagesTTL }

// CreatePostCommand publishes a post as the current user.
type CreatePostCommand struct {
	Title string `json:"title" validate:"required,min=3,max=200"`
	Body  string `json:"body" validate:"required,max=10000"`
}

// IsCommand implements pipeline.Command.
func (CreatePostCommand) IsCommand() {}

// InvalidatedKeys implements pipeline.Invalidator.
func (CreatePostCommand) InvalidatedKeys() []string { return nil }

// InvalidatedPattern implements pipeline.Invalidator.
func (CreatePostCommand) InvalidatedPattern() string { return pagesPattern }

// UpdatePostCommand edits a post owned by the current user.
type UpdatePostCommand struct {
	ID    string `json:"id" validate:"required,uuid"`
	Title string `json:"title" validate:"required,min=3,max=200"`
	Body  string `json:"body" validate:"required,max=10000"`
}

// IsCommand implements pipeline.Command.
func (UpdatePostCommand) IsCommand() {}

// InvalidatedKeys implements pipeline.Invalidator.
func (c UpdatePostCommand) InvalidatedKeys() []string { return []string{PostKey(c.ID)} }

// InvalidatedPattern implements pipeline.Invalidator.
func (UpdatePostCommand) InvalidatedPattern() string { return pagesPattern }

// DeletePostCommand removes a post owned by the current user.
type DeletePostCommand struct {
	ID string `json:"id" validate:"required,uuid"`
}

// IsCommand implements pipeline.Command.
func (DeletePostCommand) IsCommand() {}

// InvalidatedKeys implements pipeline.Invalidator.
func (c DeletePostCommand) InvalidatedKeys() []string { return []string{PostKey(c.ID)} }

// InvalidatedPattern implements pipeline.Invalidator.
func (DeletePostCommand) InvalidatedPattern() string { return pagesPattern }

// Deleted is the response to DeletePostCommand.
type Deleted struct {
	ID string `json:"id"`
}
