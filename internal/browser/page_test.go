package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenshotQualityEncodesPNG(t *testing.T) {
	// chromedp.FullScreenshot switches to JPEG below quality 100, while the
	// recorder names every file .png.
	assert.Equal(t, 100, screenshotQuality)
}
