package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPDF(Build(sampleClaim(), nil, reportNow), &buf))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "%%EOF")
}

func TestRenderPDF_LongDescriptionAddsPages(t *testing.T) {
	short := newDocument(Build(sampleClaim(), nil, reportNow))
	require.NoError(t, short.Error())

	c := sampleClaim()
	long := strings.Repeat("The treating physician documented repeated failures of conservative therapy. ", 120)
	c.Description = &long
	doc := newDocument(Build(c, nil, reportNow))
	require.NoError(t, doc.Error())
	assert.Greater(t, doc.PageCount(), short.PageCount())
}

func TestRenderPDF_NonLatinText(t *testing.T) {
	c := sampleClaim()
	c.PatientFullName = ptr("José Álvarez")
	var buf bytes.Buffer
	require.NoError(t, RenderPDF(Build(c, nil, reportNow), &buf))
}
