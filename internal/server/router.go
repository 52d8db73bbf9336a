package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/stalecache/internal/cache"
	"github.com/any-hub/stalecache/internal/logging"
	"github.com/any-hub/stalecache/internal/orchestrator"
)

// ServiceBackend describes the cache operations exposed over HTTP. It allows
// injecting fakes during tests.
type ServiceBackend interface {
	Service(ctx context.Context, group, key string, args ...string) (*cache.Document, error)
	Get(ctx context.Context, group, key string, includeMetadata bool) (json.RawMessage, error)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Backend    ServiceBackend
	ListenPort int
}

const (
	contextKeyRequestID = "_stalecache_request_id"

	headerCacheStatus = "X-Cache-Status"
	argQueryName      = "arg"
)

// NewApp builds a Fiber application serving cached documents with request IDs
// and structured error handling. Diagnostics under /-/ are registered by the
// routes package after construction.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("service backend is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/-/cache/:group/:key", lookupHandler(opts))
	app.Get("/:group/:key", serviceHandler(opts))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并写回响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func serviceHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}

		groupName := c.Params("group")
		key := c.Params("key")
		doc, err := opts.Backend.Service(requestContext(c), groupName, key, queryArgs(c)...)
		if err != nil {
			return renderServiceError(c, opts.Logger, groupName, key, err)
		}

		body, err := json.Marshal(doc)
		if err != nil {
			return renderServiceError(c, opts.Logger, groupName, key, err)
		}

		opts.Logger.WithFields(logging.RequestFields(RequestID(c), groupName, key, string(doc.Status))).Debug("served")
		c.Set(headerCacheStatus, string(doc.Status))
		return sendJSONWithETag(c, documentTag(doc), body)
	}
}

func lookupHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		groupName := c.Params("group")
		key := c.Params("key")
		includeMeta := isTruthy(c.Query("meta"))

		body, err := opts.Backend.Get(requestContext(c), groupName, key, includeMeta)
		switch {
		case err == nil:
		case errors.Is(err, cache.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		case errors.Is(err, cache.ErrInvalidName):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_name"})
		default:
			opts.Logger.WithError(err).
				WithFields(logging.RequestFields(RequestID(c), groupName, key, "")).
				Error("cache_lookup_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
		}

		return sendJSONWithETag(c, body, body)
	}
}

// sendJSONWithETag 以 tag 的 xxhash 作为 ETag；If-None-Match 命中时返回 304。
func sendJSONWithETag(c fiber.Ctx, tag []byte, body []byte) error {
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(tag))
	c.Set(fiber.HeaderETag, etag)
	if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && etagMatches(match, etag) {
		return c.SendStatus(fiber.StatusNotModified)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Status(fiber.StatusOK).Send(body)
}

// documentTag 覆盖 status 与 data；updated 的变化不影响 ETag。
func documentTag(doc *cache.Document) []byte {
	tag := make([]byte, 0, len(doc.Status)+1+len(doc.Data))
	tag = append(tag, string(doc.Status)...)
	tag = append(tag, 0)
	return append(tag, doc.Data...)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func renderServiceError(c fiber.Ctx, logger *logrus.Logger, groupName, key string, err error) error {
	var svcErr *orchestrator.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = &orchestrator.ServiceError{
			Kind:    orchestrator.KindFetchFailure,
			Message: "Resource get failure",
			Code:    fiber.StatusInternalServerError,
			Err:     err,
		}
	}

	status := svcErr.Code
	if status < 400 || status > 599 {
		status = fiber.StatusInternalServerError
	}

	entry := logger.WithFields(logging.RequestFields(RequestID(c), groupName, key, string(svcErr.Kind)))
	if svcErr.Err != nil {
		entry = entry.WithError(svcErr.Err)
	}
	entry.WithField("code", svcErr.Code).Warn(svcErr.Message)

	return c.Status(status).JSON(svcErr)
}

func queryArgs(c fiber.Ctx) []string {
	raw := c.Request().URI().QueryArgs().PeekMulti(argQueryName)
	if len(raw) == 0 {
		return nil
	}
	args := make([]string, len(raw))
	for i, value := range raw {
		args[i] = string(value)
	}
	return args
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
