package model

import "github.com/stemsi/mockexam-backend/internal/widget"

// WidgetDrop is where the learner released a dragged widget.
type WidgetDrop struct {
	Point    widget.Point    `json:"point"`
	Viewport widget.Viewport `json:"viewport"`
}

// UpdateWidgetRequest changes the stored widget preference.
type UpdateWidgetRequest struct {
	Enabled   *bool       `json:"enabled"`
	Dismissed *bool       `json:"dismissed"`
	Drop      *WidgetDrop `json:"drop"`
}

// WidgetEventRequest reports a voice SDK callback or user intent.
type WidgetEventRequest struct {
	Event  widget.Event `json:"event" binding:"required,oneof=connect connected failed disconnected reset"`
	Reason string       `json:"reason" binding:"max=255"`
}

// WidgetConnectionState is the server's view of a learner's voice session.
type WidgetConnectionState struct {
	State     widget.State `json:"state"`
	Accepted  bool         `json:"accepted"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
}
