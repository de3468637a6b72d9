// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

import (
	"fmt"
	"strings"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
// It is injected at application startup through linker flags.
type Context struct {
	version   string
	buildDate string
}

// NewContext creates build metadata.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the Git version tag from build
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the time when the binary was built
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// UserAgent appends the version to product, e.g. "leafscan/1.2.0".
// product is returned unchanged when it already carries a version or
// no version is known.
func (c *Context) UserAgent(product string) string {
	if c == nil || c.version == "" || strings.Contains(product, "/") {
		return product
	}
	return product + "/" + c.version
}

// String implements fmt.Stringer
func (c *Context) String() string {
	return fmt.Sprintf("leafscan %s (built %s)", c.Version(), c.BuildDate())
}
