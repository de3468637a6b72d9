package testutil

import (
	"testing"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/stretchr/testify/assert"
)

func TestFixturesAreSniffable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", mimetype.Detect(PNGBytes()).String())
	assert.Equal(t, "image/jpeg", mimetype.Detect(JPEGBytes()).String())
}

func TestReceive(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Receive(t, ch, ShortTestTimeout, "no value"))

	done := make(chan struct{})
	close(done)
	WaitForChannel(t, done, 10*time.Millisecond, "not closed")
}
