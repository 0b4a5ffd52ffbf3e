package display

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// upperHalfBlock draws the upper pixel in the foreground colour and the
// lower one in the background colour, giving two square pixels per cell.
const upperHalfBlock = "▀"

// previewSize returns the cell grid for an image of w×h pixels that is cols
// cells wide and at most maxRows cells high (no limit when maxRows <= 0).
func previewSize(w, h, cols, maxRows int) (int, int) {
	if w <= 0 || h <= 0 || cols <= 0 {
		return 0, 0
	}
	rows := max(1, (cols*h/w+1)/2)
	if maxRows > 0 && rows > maxRows {
		rows = maxRows
		cols = max(1, rows*2*w/h)
	}
	return cols, rows
}

// renderPreview samples img onto a cols×rows grid of half blocks with
// nearest-neighbour scaling.
func renderPreview(img image.Image, cols, maxRows int) string {
	b := img.Bounds()
	cols, rows := previewSize(b.Dx(), b.Dy(), cols, maxRows)
	if cols == 0 {
		return ""
	}

	var sb strings.Builder
	for r := range rows {
		for c := range cols {
			x := b.Min.X + c*b.Dx()/cols
			top := b.Min.Y + (2*r)*b.Dy()/(2*rows)
			bottom := b.Min.Y + (2*r+1)*b.Dy()/(2*rows)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(hexColor(img, x, top)).
				Background(hexColor(img, x, bottom)).
				Render(upperHalfBlock))
		}
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func hexColor(img image.Image, x, y int) lipgloss.Color {
	r, g, b, _ := img.At(x, y).RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}
