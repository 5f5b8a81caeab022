package internal

import (
	"errors"
	"fmt"
	"log"
)

const (
	CanvasWidth     = 1920
	CanvasHeight    = 1080
	maxMaterialSide = 500
)

// Material is one item of the local user's own canvas.
type Material struct {
	ID     string
	URL    string
	X      float64
	Y      float64
	Width  float64
	Height float64
	ZIndex int
}

// Emitter forwards local edits to the other participants.
type Emitter interface {
	EmitAdd(op AddMaterial) error
	EmitMove(op MoveMaterial) error
	EmitResize(op ResizeMaterial) error
	EmitDelete(op DeleteMaterial) error
	EmitBackgroundChanged(op BackgroundChanged) error
}

// Renderer is asked to redraw after every completed state change.
type Renderer interface {
	Redraw()
}

// RendererFunc adapts a plain function to Renderer.
type RendererFunc func()

func (f RendererFunc) Redraw() { f() }

type nopRenderer struct{}

func (nopRenderer) Redraw() {}

type nopEmitter struct{}

func (nopEmitter) EmitAdd(AddMaterial) error                     { return nil }
func (nopEmitter) EmitMove(MoveMaterial) error                   { return nil }
func (nopEmitter) EmitResize(ResizeMaterial) error               { return nil }
func (nopEmitter) EmitDelete(DeleteMaterial) error               { return nil }
func (nopEmitter) EmitBackgroundChanged(BackgroundChanged) error { return nil }

// Canvas owns the local user's materials in z-order. Remote operations never
// touch it; they go to the Reconciler. It is not safe for concurrent use.
type Canvas struct {
	materials  []Material
	nextID     int
	background string
	emitter    Emitter
	renderer   Renderer
}

func NewCanvas(emitter Emitter, renderer Renderer) *Canvas {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if renderer == nil {
		renderer = nopRenderer{}
	}
	return &Canvas{nextID: 1, emitter: emitter, renderer: renderer}
}

// SetRenderer swaps the redraw target.
func (c *Canvas) SetRenderer(renderer Renderer) {
	if renderer == nil {
		renderer = nopRenderer{}
	}
	c.renderer = renderer
}

// Add places a material centered on (x, y), scaled down to fit 500x500.
func (c *Canvas) Add(url string, x, y, width, height float64) Material {
	width, height = fitWithin(width, height, maxMaterialSide, maxMaterialSide)
	material := Material{
		ID:     fmt.Sprintf("material-%d", c.nextID),
		URL:    url,
		X:      x - width/2,
		Y:      y - height/2,
		Width:  width,
		Height: height,
		ZIndex: len(c.materials),
	}
	c.nextID++
	c.materials = append(c.materials, material)
	c.renderer.Redraw()
	c.emit(c.emitter.EmitAdd(AddMaterial{
		MaterialID:  material.ID,
		MaterialURL: material.URL,
		X:           material.X,
		Y:           material.Y,
		Width:       material.Width,
		Height:      material.Height,
	}))
	return material
}

// Move repositions a material, keeping it inside the canvas bounds.
func (c *Canvas) Move(id string, x, y float64) (Material, bool) {
	idx := c.indexOf(id)
	if idx < 0 {
		return Material{}, false
	}
	m := &c.materials[idx]
	m.X = clamp(x, 0, CanvasWidth-m.Width)
	m.Y = clamp(y, 0, CanvasHeight-m.Height)
	c.renderer.Redraw()
	c.emit(c.emitter.EmitMove(MoveMaterial{MaterialID: m.ID, X: m.X, Y: m.Y}))
	return *m, true
}

func (c *Canvas) Resize(id string, width, height float64) (Material, bool) {
	idx := c.indexOf(id)
	if idx < 0 || width <= 0 || height <= 0 {
		return Material{}, false
	}
	m := &c.materials[idx]
	m.Width, m.Height = width, height
	c.renderer.Redraw()
	c.emit(c.emitter.EmitResize(ResizeMaterial{MaterialID: m.ID, Width: m.Width, Height: m.Height}))
	return *m, true
}

func (c *Canvas) Delete(id string) bool {
	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	c.materials = append(c.materials[:idx], c.materials[idx+1:]...)
	for i := range c.materials {
		c.materials[i].ZIndex = i
	}
	c.renderer.Redraw()
	c.emit(c.emitter.EmitDelete(DeleteMaterial{MaterialID: id}))
	return true
}

// Clear wipes the local canvas. Nothing is sent: peers keep their ghosts until
// this user deletes materials one by one or leaves.
func (c *Canvas) Clear() {
	c.materials = nil
	c.renderer.Redraw()
}

// SetBackground changes the local background and tells peers about it.
func (c *Canvas) SetBackground(url string) {
	c.background = url
	c.renderer.Redraw()
	c.emit(c.emitter.EmitBackgroundChanged(BackgroundChanged{BackgroundURL: url}))
}

func (c *Canvas) Background() string {
	return c.background
}

// Materials returns a copy of the materials in z-order, bottom first.
func (c *Canvas) Materials() []Material {
	out := make([]Material, len(c.materials))
	copy(out, c.materials)
	return out
}

func (c *Canvas) Get(id string) (Material, bool) {
	idx := c.indexOf(id)
	if idx < 0 {
		return Material{}, false
	}
	return c.materials[idx], true
}

// Count reports own materials only.
func (c *Canvas) Count() int {
	return len(c.materials)
}

// MaterialAt returns the topmost own material containing the point.
func (c *Canvas) MaterialAt(x, y float64) (Material, bool) {
	for i := len(c.materials) - 1; i >= 0; i-- {
		m := c.materials[i]
		if x >= m.X && x <= m.X+m.Width && y >= m.Y && y <= m.Y+m.Height {
			return m, true
		}
	}
	return Material{}, false
}

func (c *Canvas) indexOf(id string) int {
	for i := range c.materials {
		if c.materials[i].ID == id {
			return i
		}
	}
	return -1
}

// emit logs send failures; local edits stand even when peers miss them.
func (c *Canvas) emit(err error) {
	if err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("emit: %v", err)
	}
}

func fitWithin(width, height, maxWidth, maxHeight float64) (float64, float64) {
	if width > maxWidth {
		height = height * maxWidth / width
		width = maxWidth
	}
	if height > maxHeight {
		width = width * maxHeight / height
		height = maxHeight
	}
	return width, height
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
