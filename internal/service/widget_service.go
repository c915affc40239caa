package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/widget"
)

// WidgetService stores voice widget preferences and tracks each learner's
// voice connection state.
type WidgetService struct {
	store widget.Store
	zones widget.Zones
	log   zerolog.Logger

	mu    sync.Mutex
	conns map[int]*widget.Connection
}

// NewWidgetService creates a new WidgetService.
func NewWidgetService(store widget.Store, zones widget.Zones, log zerolog.Logger) *WidgetService {
	return &WidgetService{
		store: store,
		zones: zones,
		log:   log.With().Str("component", "widget_service").Logger(),
		conns: make(map[int]*widget.Connection),
	}
}

// Preference returns the stored preference or the default.
func (s *WidgetService) Preference(ctx context.Context, learnerID int) (widget.Preference, error) {
	return s.store.Get(ctx, learnerID)
}

// Update applies req. A drop inside the dismiss zone dismisses the widget;
// anywhere else the widget is clamped and docked.
func (s *WidgetService) Update(ctx context.Context, learnerID int, req *model.UpdateWidgetRequest) (widget.Preference, error) {
	p, err := s.store.Get(ctx, learnerID)
	if err != nil {
		return widget.Preference{}, err
	}

	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	if req.Dismissed != nil {
		p.Dismissed = *req.Dismissed
	}
	if req.Drop != nil {
		pos, side, dismissed := s.zones.Release(req.Drop.Point, req.Drop.Viewport)
		if dismissed {
			p.Dismissed = true
		} else {
			p.Position = pos
			p.Side = side
		}
	}

	if err := s.store.Set(ctx, learnerID, p); err != nil {
		return widget.Preference{}, err
	}
	return p, nil
}

// Fire feeds ev into the learner's connection state machine.
func (s *WidgetService) Fire(learnerID int, ev widget.Event, reason string) model.WidgetConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[learnerID]
	if !ok {
		c = widget.NewConnection()
		s.conns[learnerID] = c
	}

	var accepted bool
	if ev == widget.EventFailed {
		accepted = c.Fail(reason)
	} else {
		accepted = c.Fire(ev)
	}
	if !accepted {
		s.log.Debug().Int("learner_id", learnerID).Str("state", string(c.State())).Str("event", string(ev)).Msg("Ignored widget event")
	}
	if c.State() == widget.StateIdle {
		delete(s.conns, learnerID)
	}

	return model.WidgetConnectionState{
		State:     c.State(),
		Accepted:  accepted,
		Attempts:  c.Attempts(),
		LastError: c.LastError(),
	}
}
