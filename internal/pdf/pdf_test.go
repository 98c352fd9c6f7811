package pdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerdocs/internal/pdf/pdftest"
)

func TestPageCount(t *testing.T) {
	for _, pages := range []int{1, 3} {
		n, err := PageCount(bytes.NewReader(pdftest.Minimal(pages)))
		require.NoError(t, err)
		assert.Equal(t, pages, n)
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	_, err := PageCount(strings.NewReader("%PDF-1.4\nthis is not really a pdf"))
	assert.Error(t, err)
}
