package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

// Config lists, per route path suffix, the string fields of a JSON object
// body that are checked before the handler runs.
type Config struct {
	MaxFieldLength      int
	AllowedContentTypes []string
	Fields              map[string][]string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 2000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		fields := fieldsFor(c.Path(), cfg.Fields)
		if len(fields) == 0 {
			return c.Next()
		}

		// Bodies that are not JSON objects are left for the handler to reject.
		var body map[string]interface{}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Next()
		}

		for _, name := range fields {
			value, ok := body[name].(string)
			if !ok {
				continue
			}

			if len(value) > cfg.MaxFieldLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Field " + name + " exceeds maximum length",
				})
			}

			if xssPattern.MatchString(value) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("field", name),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid content in field " + name,
				})
			}

			if strings.ContainsRune(value, '\x00') {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid content in field " + name,
				})
			}
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func fieldsFor(path string, rules map[string][]string) []string {
	path = strings.TrimSuffix(path, "/")
	for suffix, fields := range rules {
		if strings.HasSuffix(path, suffix) {
			return fields
		}
	}
	return nil
}
