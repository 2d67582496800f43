package ratelimit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
)

type route struct {
	prefix string
	class  models.EndpointClass
}

// Classifier assigns an endpoint class to a request path by longest-prefix match
type Classifier struct {
	routes []route
}

// NewClassifier validates the route table and orders it longest prefix first
func NewClassifier(routes map[string]models.EndpointClass) (*Classifier, error) {
	c := &Classifier{routes: make([]route, 0, len(routes))}

	for prefix, class := range routes {
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", prefix)
		}
		if !class.IsValid() {
			return nil, fmt.Errorf("route prefix %q: unknown endpoint class %q", prefix, class)
		}
		c.routes = append(c.routes, route{prefix: prefix, class: class})
	}

	sort.Slice(c.routes, func(i, j int) bool {
		if len(c.routes[i].prefix) != len(c.routes[j].prefix) {
			return len(c.routes[i].prefix) > len(c.routes[j].prefix)
		}
		return c.routes[i].prefix < c.routes[j].prefix
	})

	return c, nil
}

// Classify returns the class of the longest matching prefix, or general
func (c *Classifier) Classify(path string) models.EndpointClass {
	for _, r := range c.routes {
		if pkghttp.HasPathPrefix(path, r.prefix) {
			return r.class
		}
	}
	return models.EndpointClassGeneral
}
