package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	mapCols = 64
	mapRows = 18
)

var (
	mapBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60"))
	ownMaterialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	emptyCellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	layerTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
	layerItemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	ghostItemStyle   = lipgloss.NewStyle().Faint(true).Border(lipgloss.ThickBorder(), false, false, false, true).PaddingLeft(1)
)

// TextRenderer draws the canvas and the ghosts as terminal text. Redraw rebuilds
// the cached frame; Frame returns it.
type TextRenderer struct {
	canvas *Canvas
	ghosts *Reconciler
	frame  string
	draws  int // redraw requests
}

func NewTextRenderer(canvas *Canvas, ghosts *Reconciler) *TextRenderer {
	r := &TextRenderer{canvas: canvas, ghosts: ghosts}
	r.Redraw()
	return r
}

func (r *TextRenderer) Redraw() {
	r.draws++
	sections := []string{r.renderMap(), r.renderLayers()}
	r.frame = lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (r *TextRenderer) Frame() string {
	return r.frame
}

type mapCell struct {
	glyph string
	style lipgloss.Style
}

func (r *TextRenderer) renderMap() string {
	grid := make([][]mapCell, mapRows)
	for row := range grid {
		grid[row] = make([]mapCell, mapCols)
		for col := range grid[row] {
			grid[row][col] = mapCell{glyph: "·", style: emptyCellStyle}
		}
	}
	if r.ghosts != nil {
		for _, g := range r.ghosts.Ghosts() {
			style := lipgloss.NewStyle().Faint(true).Foreground(ghostColor(g.UserColor))
			paint(grid, g.Material, mapCell{glyph: "░", style: style})
		}
	}
	if r.canvas != nil {
		for _, m := range r.canvas.Materials() {
			paint(grid, m, mapCell{glyph: "█", style: ownMaterialStyle})
		}
	}

	var b strings.Builder
	for row := range grid {
		for _, cell := range grid[row] {
			b.WriteString(cell.style.Render(cell.glyph))
		}
		if row < len(grid)-1 {
			b.WriteByte('\n')
		}
	}
	return mapBoxStyle.Render(b.String())
}

func paint(grid [][]mapCell, m Material, cell mapCell) {
	if m.Width <= 0 || m.Height <= 0 {
		return
	}
	col0 := int(m.X * mapCols / CanvasWidth)
	col1 := int((m.X + m.Width) * mapCols / CanvasWidth)
	row0 := int(m.Y * mapRows / CanvasHeight)
	row1 := int((m.Y + m.Height) * mapRows / CanvasHeight)
	for row := max(row0, 0); row <= min(row1, mapRows-1); row++ {
		for col := max(col0, 0); col <= min(col1, mapCols-1); col++ {
			grid[row][col] = cell
		}
	}
}

func (r *TextRenderer) renderLayers() string {
	lines := []string{}
	if r.canvas != nil {
		bg := r.canvas.Background()
		if bg == "" {
			bg = "none"
		}
		lines = append(lines, layerTitleStyle.Render(fmt.Sprintf("Background: %s", bg)))
		lines = append(lines, layerTitleStyle.Render(fmt.Sprintf("Material Count: %d", r.canvas.Count())))
		for _, m := range r.canvas.Materials() {
			lines = append(lines, layerItemStyle.Render(describeMaterial(m.ID, m)))
		}
	}
	if r.ghosts != nil && r.ghosts.Len() > 0 {
		lines = append(lines, layerTitleStyle.Render("Others"))
		for _, g := range r.ghosts.Ghosts() {
			color := ghostColor(g.UserColor)
			label := lipgloss.NewStyle().Bold(true).Foreground(color).Render(g.Label())
			body := ghostItemStyle.Copy().BorderForeground(color).Render(label + " " + describeMaterial(g.ID, g.Material))
			lines = append(lines, body)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func describeMaterial(id string, m Material) string {
	return fmt.Sprintf("%s (%.0f,%.0f) %.0fx%.0f %s", id, m.X, m.Y, m.Width, m.Height, m.URL)
}

func ghostColor(color string) lipgloss.Color {
	if strings.TrimSpace(color) == "" {
		return lipgloss.Color(DefaultColor)
	}
	return lipgloss.Color(color)
}
