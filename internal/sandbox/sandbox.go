// Package sandbox serves local replicas of the pages the fixtures exercise so
// runs do not depend on the live sites.
package sandbox

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	DemoPath       = "/automationpractice/index.php"
	StorefrontPath = "/alexandra/"
)

// Product is an entry of the demo catalog.
type Product struct {
	Name   string
	Colors []string
}

// Catalog is what the demo search runs against. Exactly one product is pink.
var Catalog = []Product{
	{Name: "Faded Short Sleeve T-shirts", Colors: []string{"orange", "blue"}},
	{Name: "Blouse", Colors: []string{"black", "white"}},
	{Name: "Printed Dress", Colors: []string{"beige", "pink"}},
	{Name: "Printed Summer Dress", Colors: []string{"yellow", "black", "orange", "blue"}},
	{Name: "Printed Chiffon Dress", Colors: []string{"yellow", "green"}},
}

// Titles are the options of the storefront's title select.
var Titles = []string{"Mr", "Mrs", "Miss", "Ms", "Dr"}

// Search returns catalog products whose name or colour contains query.
func Search(query string) []Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Product
	for _, p := range Catalog {
		if strings.Contains(strings.ToLower(p.Name), q) || containsColor(p.Colors, q) {
			out = append(out, p)
		}
	}
	return out
}

func containsColor(colors []string, q string) bool {
	for _, c := range colors {
		if strings.Contains(c, q) {
			return true
		}
	}
	return false
}

// ResultsCounter renders the heading counter for n results.
func ResultsCounter(n int) string {
	if n == 1 {
		return "1 result has been found."
	}
	return fmt.Sprintf("%d results have been found.", n)
}

// NewApp builds the sandbox routes.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "uicheck sandbox",
		DisableStartupMessage: true,
	})

	app.Get(DemoPath, handleDemo)
	app.Get(StorefrontPath, handleStorefrontHome)
	app.Get(StorefrontPath+"customer/account/create/", handleStorefrontCreate)
	app.Post(StorefrontPath+"customer/account/createpost/", handleStorefrontCreatePost)

	return app
}

func handleDemo(c *fiber.Ctx) error {
	data := map[string]interface{}{
		"Title":  "My Store",
		"Action": DemoPath,
	}
	if c.Query("controller") == "search" {
		query := c.Query("search_query")
		products := Search(query)
		data["Title"] = "Search - My Store"
		data["Searched"] = true
		data["Query"] = query
		data["Products"] = products
		data["Counter"] = ResultsCounter(len(products))
	}
	return render(c, demoPage, data)
}

func handleStorefrontHome(c *fiber.Ctx) error {
	return render(c, storefrontHome, map[string]interface{}{
		"Title": "Alexandra",
		"Base":  StorefrontPath,
	})
}

func handleStorefrontCreate(c *fiber.Ctx) error {
	return render(c, storefrontCreate, map[string]interface{}{
		"Title":  "Create New Customer Account",
		"Base":   StorefrontPath,
		"Titles": Titles,
	})
}

func handleStorefrontCreatePost(c *fiber.Ctx) error {
	firstName := strings.TrimSpace(c.FormValue("firstname"))
	if firstName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "First Name is a required field")
	}
	return render(c, storefrontCreated, map[string]interface{}{
		"Title":     "My Account",
		"FirstName": firstName,
	})
}

func render(c *fiber.Ctx, tmpl *template.Template, data interface{}) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// Server is a running sandbox.
type Server struct {
	app     *fiber.App
	ln      net.Listener
	baseURL string
}

// Start listens on addr (use "127.0.0.1:0" for a free port) and serves the
// sandbox in the background.
func Start(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		app:     NewApp(),
		ln:      ln,
		baseURL: "http://" + ln.Addr().String(),
	}

	go func() {
		if err := s.app.Listener(ln); err != nil {
			log.Printf("Sandbox stopped: %v", err)
		}
	}()

	log.Printf("Sandbox serving on %s", s.baseURL)
	return s, nil
}

// BaseURL is the root the sandbox listens on, e.g. http://127.0.0.1:41234.
func (s *Server) BaseURL() string { return s.baseURL }

// StorefrontURL is the sandbox replacement for the storefront page.
func (s *Server) StorefrontURL() string { return s.baseURL + StorefrontPath }

// DemoURL is the sandbox replacement for the demo site page.
func (s *Server) DemoURL() string { return s.baseURL + DemoPath }

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
