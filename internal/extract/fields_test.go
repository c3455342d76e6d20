package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

const bondiPage = `<html><body>
	<span class="navbar-title-text">Bondi Beach</span>
	<div class="beach-timelapse-panel">Updated 12 minutes ago</div>
	<div class="bw-status-text other">Open</div>
	<div class="bw-air-temp-value">27°C</div>
	<span class="bw-ocean-temp-value">21°C</span>
	<div class="bw-weather-text">Sunny</div>
	<div class="bw-swell">1m SE</div>
	<div class="bw-patrol-info"><b>Patrolled</b> 9am-5pm</div>
	<div class="bw-rainfall">0mm</div>
	<div class="bw-high-tide">10:02</div>
	<div class="bw-low-tide">16:14</div>
	<div class="bw-alert-text">Shark sighted</div>
	<div class="bw-alert-text">Closed</div>
</body></html>`

func valueOf(t *testing.T, fields []beach.LabeledValue, label string) beach.LabeledValue {
	t.Helper()
	for _, f := range fields {
		if f.Label == label {
			return f
		}
	}
	t.Fatalf("label %q not found", label)
	return beach.LabeledValue{}
}

func TestFieldsFromBeachPage(t *testing.T) {
	t.Parallel()

	fields, err := FieldsFromHTML(bondiPage, beach.DefaultFieldSpec())
	require.NoError(t, err)
	require.Len(t, fields, 13)

	for i, f := range beach.DefaultFieldSpec() {
		assert.Equal(t, f.Label, fields[i].Label, "order follows the field spec")
	}

	assert.Equal(t, "Bondi Beach", valueOf(t, fields, "Beach name").Value.String())
	assert.Equal(t, "Open", valueOf(t, fields, "Pollution status").Value.String())
	assert.Equal(t, "21°C", valueOf(t, fields, "Water temperature").Value.String())
	assert.Equal(t, "Patrolled", valueOf(t, fields, "Patrol info").Value.String())

	wind := valueOf(t, fields, "Wind")
	assert.True(t, wind.Fallback)
	assert.Equal(t, "bw-wind", wind.Value.String())

	alert := valueOf(t, fields, "Alert")
	assert.False(t, alert.Fallback)
	require.True(t, alert.Value.IsList)
	assert.Equal(t, []string{"Shark sighted", "Closed"}, alert.Value.List)
	assert.Equal(t, "Shark sighted Closed", alert.Value.String())
}

func TestFieldsIsPure(t *testing.T) {
	t.Parallel()

	doc, err := Parse(bondiPage)
	require.NoError(t, err)
	first := Fields(doc, beach.DefaultFieldSpec())
	second := Fields(doc, beach.DefaultFieldSpec())
	assert.Equal(t, first, second)
}

func TestFieldMultiEmptyList(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<div class="bw-status-text">Open</div>`)
	require.NoError(t, err)
	v, err := Field(doc, beach.Field{Selector: "bw-alert-text", Label: "Alert", Multi: true})
	require.NoError(t, err)
	assert.True(t, v.IsList)
	assert.Empty(t, v.List)
	assert.Equal(t, "", v.String())
}

func TestFieldMultiWithEmptyElementFallsBack(t *testing.T) {
	t.Parallel()

	spec := beach.FieldSpec{{Selector: "bw-alert-text", Label: "Alert", Multi: true}}
	fields, err := FieldsFromHTML(`<div class="bw-alert-text">Closed</div><div class="bw-alert-text"></div>`, spec)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.True(t, fields[0].Fallback)
	assert.False(t, fields[0].Value.IsList)
	assert.Equal(t, "bw-alert-text", fields[0].Value.String())
}

func TestFieldPrefersDivOverSpan(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<span class="bw-swell">span</span><div class="bw-swell">div</div>`)
	require.NoError(t, err)
	v, err := Field(doc, beach.Field{Selector: "bw-swell", Label: "Swell"})
	require.NoError(t, err)
	assert.Equal(t, "div", v.String())
}

func TestFieldEmptyElementIsAnError(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<div class="bw-swell"></div>`)
	require.NoError(t, err)
	_, err = Field(doc, beach.Field{Selector: "bw-swell", Label: "Swell"})
	require.ErrorIs(t, err, errNoChild)

	_, err = Field(doc, beach.Field{Selector: "bw-wind", Label: "Wind"})
	require.ErrorIs(t, err, errElementNotFound)
}
