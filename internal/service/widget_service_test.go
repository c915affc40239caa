package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/widget"
)

func TestWidgetUpdate(t *testing.T) {
	svc := NewWidgetService(widget.NewMemoryStore(), widget.DefaultZones, zerolog.Nop())
	ctx := context.Background()
	vp := widget.Viewport{Width: 400, Height: 800}

	p, err := svc.Update(ctx, 1, &model.UpdateWidgetRequest{
		Drop: &model.WidgetDrop{Point: widget.Point{X: 30, Y: 200}, Viewport: vp},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Side != widget.SideLeft || p.Position.X != 16 || p.Dismissed {
		t.Errorf("docked preference = %+v", p)
	}

	p, _ = svc.Update(ctx, 1, &model.UpdateWidgetRequest{
		Drop: &model.WidgetDrop{Point: widget.Point{X: 200, Y: 720}, Viewport: vp},
	})
	if !p.Dismissed || p.Side != widget.SideLeft {
		t.Errorf("dismissed preference = %+v", p)
	}

	no := false
	p, _ = svc.Update(ctx, 1, &model.UpdateWidgetRequest{Dismissed: &no})
	stored, _ := svc.Preference(ctx, 1)
	if p.Dismissed || stored != p {
		t.Errorf("restored preference = %+v, stored %+v", p, stored)
	}
}

func TestWidgetConnectionEvents(t *testing.T) {
	svc := NewWidgetService(widget.NewMemoryStore(), widget.DefaultZones, zerolog.Nop())

	if st := svc.Fire(1, widget.EventConnected, ""); st.Accepted || st.State != widget.StateIdle {
		t.Errorf("connected from idle = %+v", st)
	}
	svc.Fire(1, widget.EventConnect, "")
	st := svc.Fire(1, widget.EventFailed, "microphone blocked")
	if !st.Accepted || st.State != widget.StateError || st.LastError != "microphone blocked" {
		t.Errorf("failure = %+v", st)
	}
	if st := svc.Fire(2, widget.EventConnect, ""); st.State != widget.StateConnecting {
		t.Errorf("other learner state = %+v", st)
	}
	if st := svc.Fire(1, widget.EventReset, ""); st.State != widget.StateIdle || st.Attempts != 0 {
		t.Errorf("reset = %+v", st)
	}
}
