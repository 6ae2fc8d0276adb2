// Package web serves the single-page recipe client. The page is an embedded
// html/template rendered through Gin; its script talks to the JSON API at the
// configured base URL.
package web

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

const indexTemplate = "index.html"

// Options controls where the client sends its API calls.
type Options struct {
	APIBaseURL  string // e.g. http://localhost:5000
	APIBasePath string // e.g. /api
}

// recipesEndpoint joins base URL and path into the collection URL.
func (o Options) recipesEndpoint() string {
	base := strings.TrimRight(o.APIBaseURL, "/")
	path := strings.Trim(o.APIBasePath, "/")
	if path == "" {
		return base + "/recipes"
	}
	return base + "/" + path + "/recipes"
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.html")
}

// Mount installs the page template on r and serves it at GET /.
func Mount(r *gin.Engine, opts Options) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)
	r.GET("/", Index(opts))
	return nil
}

// Index renders the client page.
func Index(opts Options) gin.HandlerFunc {
	endpoint := opts.recipesEndpoint()
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, indexTemplate, gin.H{
			"RecipesURL": endpoint,
		})
	}
}
