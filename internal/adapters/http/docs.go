package http

import (
	"context"
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// OpenAPIPath is where the served OpenAPI document is read from.
var OpenAPIPath = "api/openapi.yaml"

// The viewer page pulls swagger-ui from a CDN and points it at the JSON
// rendering, which only exists when the document loads and validates.
const docsPage = `<!DOCTYPE html>
<html lang="de">
<head>
<meta charset="UTF-8">
<title>Hydrantmap API</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: '/docs/openapi.json', dom_id: '#swagger-ui'});</script>
</body>
</html>`

// SetupDocs serves the API description: the viewer at /docs, the document as
// written at /docs/openapi.yaml and its validated JSON form at /docs/openapi.json.
func SetupDocs(app *fiber.App) {
	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.SendString(docsPage)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		data, err := os.ReadFile(OpenAPIPath)
		if err != nil {
			return errNotFound(c, "openapi document not found")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(data)
	})

	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		if _, err := os.Stat(OpenAPIPath); err != nil {
			return errNotFound(c, "openapi document not found")
		}
		doc, err := loadOpenAPI(c.UserContext(), OpenAPIPath)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("openapi document rejected", "path", OpenAPIPath, "error", err)
			return errInternal(c, "openapi document is invalid")
		}
		return c.JSON(doc)
	})
}

// loadOpenAPI parses and validates the document at path.
func loadOpenAPI(ctx context.Context, path string) (*openapi3.T, error) {
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}
