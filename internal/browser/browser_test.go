package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless, "headless is the only mode that works unattended")
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "en-IN", opts.Locale)
	assert.Equal(t, "Asia/Kolkata", opts.TimezoneID)
	assert.Contains(t, opts.UserAgent, "Chrome/120")
}
