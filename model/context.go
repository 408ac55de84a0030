package model

import (
	"sync"

	"github.com/digsplat/dig/types"
)

// RenderContext carries inference session settings that apply to every
// model rendering within the session. It replaces process-wide renderer
// globals: a viewer begins a session with its preferred background and ends
// it when the session closes.
type RenderContext struct {
	mu         sync.RWMutex
	background *types.Vec3
}

// Create an empty render context.
func NewRenderContext() *RenderContext {
	return &RenderContext{}
}

// Start a session that renders inference frames over background.
func (c *RenderContext) BeginSession(background types.Vec3) {
	c.mu.Lock()
	c.background = &background
	c.mu.Unlock()
}

// Clear any session override.
func (c *RenderContext) EndSession() {
	c.mu.Lock()
	c.background = nil
	c.mu.Unlock()
}

// Get the background override for the active session.
func (c *RenderContext) BackgroundOverride() (types.Vec3, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.background == nil {
		return types.Vec3{}, false
	}
	return *c.background, true
}
