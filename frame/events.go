package frame

// Event is one of Resize, CursorMove, CloseRequested or RefreshTick.
type Event interface {
	isEvent()
}

// Resize reports the new framebuffer size of the window.
type Resize struct {
	Size Extent
}

// CursorMove reports the cursor position in window pixels.
type CursorMove struct {
	Position Point
}

// CloseRequested asks the loop to stop after the current tick.
type CloseRequested struct{}

// RefreshTick asks for one frame to be drawn.
type RefreshTick struct{}

func (Resize) isEvent()         {}
func (CursorMove) isEvent()     {}
func (CloseRequested) isEvent() {}
func (RefreshTick) isEvent()    {}
