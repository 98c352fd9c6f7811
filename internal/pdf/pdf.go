// Package pdf reads structural facts out of uploaded PDF drawings.
package pdf

import (
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PageCount parses rs leniently and returns its number of pages.
// Drawings exported by CAD tools are often not strictly conformant, so
// relaxed validation is used.
func PageCount(rs io.ReadSeeker) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind pdf: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(rs, conf)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return n, nil
}
