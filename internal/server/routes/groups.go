package routes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/stalecache/internal/cache"
	"github.com/any-hub/stalecache/internal/group"
)

// GroupSource 是诊断接口需要的最小只读视图，由 Orchestrator 实现。
type GroupSource interface {
	Groups() *group.Registry
	UpdateInterval() time.Duration
	CacheRoot() string
	Lookup(ctx context.Context, group, key string) (*cache.Document, error)
}

// RegisterGroupRoutes 暴露 /-/groups 诊断接口，供运维查询分组配置与单个文档的新鲜度。
// now 为空时使用 time.Now。
func RegisterGroupRoutes(app *fiber.App, source GroupSource, now func() time.Time) {
	if app == nil || source == nil {
		return
	}
	if now == nil {
		now = time.Now
	}

	app.Get("/-/groups", func(c fiber.Ctx) error {
		interval := source.UpdateInterval()
		return c.JSON(fiber.Map{
			"cache_root":              source.CacheRoot(),
			"update_interval_seconds": int64(interval / time.Second),
			"lock_timeout_seconds":    int64(interval / 2 / time.Second),
			"groups":                  encodeGroups(source.Groups().List()),
		})
	})

	app.Get("/-/groups/:name", func(c fiber.Ctx) error {
		name := strings.ToLower(strings.TrimSpace(c.Params("name")))
		grp, ok := source.Groups().Resolve(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "group_not_found"})
		}

		payload := groupDetailPayload{groupPayload: encodeGroup(grp)}
		if key := strings.TrimSpace(c.Query("key")); key != "" {
			doc, err := source.Lookup(c.Context(), grp.Name, key)
			switch {
			case err == nil:
				state := encodeDocumentState(key, doc, source.UpdateInterval(), now())
				payload.Document = &state
			case errors.Is(err, cache.ErrNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "document_not_found"})
			case errors.Is(err, cache.ErrInvalidName):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_name"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
			}
		}
		return c.JSON(payload)
	})
}

type groupPayload struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

type groupDetailPayload struct {
	groupPayload
	Document *documentStatePayload `json:"document,omitempty"`
}

type documentStatePayload struct {
	Key         string       `json:"key"`
	Status      cache.Status `json:"status"`
	Updated     int64        `json:"updated"`
	Date        int64        `json:"date"`
	Fresh       bool         `json:"fresh"`
	Age         string       `json:"age"`
	NextRefresh string       `json:"next_refresh"`
	Size        string       `json:"size"`
}

func encodeGroups(groups []group.Group) []groupPayload {
	result := make([]groupPayload, 0, len(groups))
	for _, grp := range groups {
		result = append(result, encodeGroup(grp))
	}
	return result
}

func encodeGroup(grp group.Group) groupPayload {
	return groupPayload{
		Name:        grp.Name,
		Kind:        grp.Kind,
		Description: grp.Description,
	}
}

// encodeDocumentState 用人类可读的相对时间描述文档：age 以数据产生时间（date）计算，
// next_refresh 以新鲜度窗口的终点（updated + interval）计算。
func encodeDocumentState(key string, doc *cache.Document, interval time.Duration, now time.Time) documentStatePayload {
	expireAt := doc.UpdatedAt().Add(interval)
	return documentStatePayload{
		Key:         key,
		Status:      doc.Status,
		Updated:     doc.Updated,
		Date:        doc.Date,
		Fresh:       !now.After(expireAt),
		Age:         humanize.RelTime(doc.ProducedAt(), now, "ago", "from now"),
		NextRefresh: humanize.RelTime(expireAt, now, "ago", "from now"),
		Size:        humanize.Bytes(uint64(len(doc.Data))),
	}
}
