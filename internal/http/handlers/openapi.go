package handlers

import (
	_ "embed"
	"net/http"
	"strings"
)

const openAPIPath = "/v1/openapi.json"

//go:embed openapi.json
var openAPISpec []byte

// docsPage renders the description with Redoc. The kiosk operators open it
// from the booth laptop, so it is a single static page.
var docsPage = strings.ReplaceAll(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Booth Video API</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body { margin: 0; } redoc { display: block; height: 100vh; }</style>
  </head>
  <body>
    <redoc spec-url="{{spec}}"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`, "{{spec}}", openAPIPath)

func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	a.static(w, "application/json; charset=utf-8", openAPISpec)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	a.static(w, "text/html; charset=utf-8", []byte(docsPage))
}

func (a *App) static(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
