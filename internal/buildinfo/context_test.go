package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("1.0.0", "2026-01-01"), want: "1.0.0"},
		{name: "pre-release tag", ctx: NewContext("1.0.0-beta.1", ""), want: "1.0.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.Version())
		})
	}
}

func TestContextBuildDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, UnknownValue, (*Context)(nil).BuildDate())
	assert.Equal(t, UnknownValue, NewContext("1.0.0", "").BuildDate())
	assert.Equal(t, "2026-10-01", NewContext("1.0.0", "2026-10-01").BuildDate())
}

func TestContextUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "leafscan", (*Context)(nil).UserAgent("leafscan"))
	assert.Equal(t, "leafscan", NewContext("", "").UserAgent("leafscan"))
	assert.Equal(t, "leafscan/2.1.0", NewContext("2.1.0", "").UserAgent("leafscan"))
	assert.Equal(t, "custom/9", NewContext("2.1.0", "").UserAgent("custom/9"))
}

func TestContextString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "leafscan 2.1.0 (built 2026-10-01)", NewContext("2.1.0", "2026-10-01").String())
	assert.Equal(t, "leafscan unknown (built unknown)", NewContext("", "").String())
}
