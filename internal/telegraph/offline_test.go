package telegraph

import (
	"context"
	"errors"
	"testing"
)

var _ Gateway = (*OfflineGateway)(nil)

func TestOfflineGateway(t *testing.T) {
	g := NewOfflineGateway()
	ctx := context.Background()

	if err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ch, err := g.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if _, err := g.Send(ctx, "c1", TextMessage("hi")); !errors.Is(err, ErrOffline) {
		t.Errorf("Send err = %v, want ErrOffline", err)
	}
	if err := g.Update(ctx, "c1", "m1", TextMessage("hi")); !errors.Is(err, ErrOffline) {
		t.Errorf("Update err = %v", err)
	}
	if err := g.Delete(ctx, "c1", "m1"); !errors.Is(err, ErrOffline) {
		t.Errorf("Delete err = %v", err)
	}

	g.Close()
	g.Close()
	if _, ok := <-ch; ok {
		t.Error("inbound channel still open after Close")
	}
}
