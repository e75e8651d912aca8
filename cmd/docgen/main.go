// Command docgen writes docs/api.adoc from the @Title/@Route annotations on
// the API handlers.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

// Method returns the HTTP verb of the route.
func (e Endpoint) Method() string {
	return strings.SplitN(e.Route, " ", 2)[0]
}

// Path returns the route without verb or query string.
func (e Endpoint) Path() string {
	p := strings.TrimPrefix(e.Route, e.Method()+" ")
	return strings.SplitN(p, "?", 2)[0]
}

// Query returns the example query string, if any.
func (e Endpoint) Query() string {
	parts := strings.SplitN(e.Route, "?", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

var (
	reTitle = regexp.MustCompile(`// @Title: (.*)`)
	reRoute = regexp.MustCompile(`// @Route: (.*)`)
	reDesc  = regexp.MustCompile(`// @Description: (.*)`)
	reResp  = regexp.MustCompile(`// @Response: (.*)`)
)

func main() {
	apiDir := flag.String("src", "internal/api", "directory holding the annotated handlers")
	out := flag.String("out", "docs/api.adoc", "output file")
	flag.Parse()

	endpoints, err := collectEndpoints(*apiDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docgen: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "docgen: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, []byte(renderAsciiDoc(endpoints)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "docgen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s (%d endpoints)\n", *out, len(endpoints))
}

func collectEndpoints(apiDir string) ([]Endpoint, error) {
	files, err := os.ReadDir(apiDir)
	if err != nil {
		return nil, err
	}

	var endpoints []Endpoint
	for _, file := range files {
		name := file.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		found, err := scanFile(filepath.Join(apiDir, name))
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, found...)
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Path() < endpoints[j].Path()
	})
	return endpoints, nil
}

func scanFile(path string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var endpoints []Endpoint
	var current Endpoint
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
			current.Title = strings.TrimSpace(match[1])
		}
		if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
			current.Route = strings.TrimSpace(match[1])
		}
		if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
			current.Description = strings.TrimSpace(match[1])
		}
		if match := reResp.FindStringSubmatch(line); len(match) > 1 {
			current.Response = strings.TrimSpace(match[1])
			// @Response closes a block
			if current.Title != "" && current.Route != "" {
				endpoints = append(endpoints, current)
			}
			current = Endpoint{}
		}
	}
	return endpoints, scanner.Err()
}

func renderAsciiDoc(endpoints []Endpoint) string {
	var b strings.Builder
	b.WriteString("= Publishing Registry API\n")
	b.WriteString("\n")
	b.WriteString("Generated from handler annotations by `go run ./cmd/docgen`. Do not edit.\n\n")

	b.WriteString("[cols=\"1,3,4\"]\n|===\n|Method |Path |Summary\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "|%s |`%s` |%s\n", ep.Method(), ep.Path(), ep.Title)
	}
	b.WriteString("|===\n")

	for _, ep := range endpoints {
		fmt.Fprintf(&b, "\n== %s\n\n", ep.Title)
		fmt.Fprintf(&b, "`%s %s`\n\n", ep.Method(), ep.Path())
		if q := ep.Query(); q != "" {
			fmt.Fprintf(&b, "Query parameters: `%s`\n\n", q)
		}
		if ep.Description != "" {
			fmt.Fprintf(&b, "%s.\n\n", strings.TrimSuffix(ep.Description, "."))
		}
		if ep.Response != "" {
			fmt.Fprintf(&b, "[source,json]\n----\n%s\n----\n", ep.Response)
		}
	}
	return b.String()
}
