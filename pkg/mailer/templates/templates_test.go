package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDormancyNotice(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	brand := Brand{AppName: "Lifecycle", CompanyName: "Acme", LoginURL: "https://acme.test/login"}
	dormantOn := time.Date(2025, time.July, 14, 20, 0, 0, 0, time.UTC)

	data := NewDormancyNoticeData(brand, "Mina", "mina@example.com",
		WithDormantOn(dormantOn, seoul), WithDeleteAfter("1 year"))

	subject, text, html, err := Render(DormancyNotice, data)
	require.NoError(t, err)
	assert.Equal(t, "Lifecycle: your account will become dormant on 15 July 2025", subject)
	assert.Contains(t, text, "Hi Mina,")
	assert.Contains(t, text, "Sign in: https://acme.test/login")
	assert.Contains(t, text, "deleted after 1 year")
	assert.Contains(t, html, "<strong>15 July 2025</strong>")
	assert.Equal(t, "mina@example.com", data["RecipientEmail"])
}

func TestRenderFallsBackOnEmptyFields(t *testing.T) {
	_, text, _, err := Render(DormancyNotice, map[string]any{"DormantOnText": "01 January 2026"})
	require.NoError(t, err)
	assert.Contains(t, text, "Hi there,")
	assert.NotContains(t, text, "Sign in:")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, _, err := Render("welcome", nil)
	assert.Error(t, err)
}

func TestKnownCachesParsedTemplates(t *testing.T) {
	assert.True(t, Known(DormancyNotice))
	assert.False(t, Known("welcome"))

	first, err := load(DormancyNotice)
	require.NoError(t, err)
	second, err := load(DormancyNotice)
	require.NoError(t, err)
	assert.Same(t, first, second)
}
