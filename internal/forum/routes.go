package forum

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// DefaultPageSize applies when the pageSize parameter is omitted.
const DefaultPageSize = 20

// RegisterRoutes mounts the post endpoints under r.
func RegisterRoutes(r gin.IRouter, d *pipeline.Dispatcher) {
	posts := r.Group("/api/posts")
	posts.GET("", listPosts(d))
	posts.GET("/:id", getPost(d))
	posts.POST("", createPost(d))
	posts.PUT("/:id", updatePost(d))
	posts.DELETE("/:id", deletePost(d))
}

func writeError(c *gin.Context, err error) {
	util.WriteError(c.Writer, observability.RequestIDFromContext(c.Request.Context()), err)
	c.Abort()
}

func respond[Resp any](c *gin.Context, d *pipeline.Dispatcher, status int, req any) {
	resp, err := pipeline.Dispatch[Resp](c.Request.Context(), d, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, resp)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, util.NewBadRequestError(name+" must be an integer", err)
	}
	return n, nil
}

func listPosts(d *pipeline.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := queryInt(c, "page", 1)
		if err != nil {
			writeError(c, err)
			return
		}
		size, err := queryInt(c, "pageSize", DefaultPageSize)
		if err != nil {
			writeError(c, err)
			return
		}
		respond[*Page](c, d, http.StatusOK, ListPostsQuery{Page: page, PageSize: size})
	}
}

func getPost(d *pipeline.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond[*Post](c, d, http.StatusOK, GetPostQuery{ID: c.Param("id")})
	}
}

func createPost(d *pipeline.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd CreatePostCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			writeError(c, util.NewBadRequestError("request body must be a JSON post", err))
			return
		}
		respond[*Post](c, d, http.StatusCreated, cmd)
	}
}

func updatePost(d *pipeline.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd UpdatePostCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			writeError(c, util.NewBadRequestError("request body must be a JSON post", err))
			return
		}
		cmd.ID = c.Param("id")
		respond[*Post](c, d, http.StatusOK, cmd)
	}
}

func deletePost(d *pipeline.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond[*Deleted](c, d, http.StatusOK, DeletePostCommand{ID: c.Param("id")})
	}
}
