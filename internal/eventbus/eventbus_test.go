package eventbus

import (
	"context"
	"testing"
	"time"

	"deployctl/internal/model"
)

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	bus := New(8, nil)
	ch, unsubscribe := bus.Subscribe("dep-1", OverflowDropOldest)
	defer unsubscribe()

	other, unsubOther := bus.Subscribe("dep-2", OverflowDropOldest)
	defer unsubOther()

	evt := model.DeploymentEvent{DeploymentID: "dep-1", Seq: bus.NextSeq("dep-1"), Type: model.EventStatusChanged}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.DeploymentID != "dep-1" || got.Seq != 1 {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case <-other:
		t.Fatal("subscriber for a different deployment_id should not receive the event")
	default:
	}
}

func TestWildcardSubscriberReceivesEverything(t *testing.T) {
	bus := New(8, nil)
	ch, unsubscribe := bus.Subscribe("*", OverflowDropOldest)
	defer unsubscribe()

	bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "a", Seq: bus.NextSeq("a")})
	bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "b", Seq: bus.NextSeq("b")})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			seen[e.DeploymentID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both deployments observed, got %v", seen)
	}
}

func TestSeqStrictlyIncreasingPerDeployment(t *testing.T) {
	bus := New(8, nil)
	var seqs []uint64
	for i := 0; i < 5; i++ {
		seqs = append(seqs, bus.NextSeq("dep-x"))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Fatalf("seq not strictly increasing: %v", seqs)
		}
	}
	// a different deployment gets its own independent counter
	if first := bus.NextSeq("dep-y"); first != 1 {
		t.Fatalf("expected independent counter to start at 1, got %d", first)
	}
}

func TestDropOldestOverflowKeepsNewestAndDoesNotBlock(t *testing.T) {
	bus := New(2, nil)
	ch, unsubscribe := bus.Subscribe("dep-1", OverflowDropOldest)
	defer unsubscribe()

	for i := 1; i <= 5; i++ {
		seq := uint64(i)
		bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "dep-1", Seq: seq})
	}

	// buffer holds 2; draining should surface the two most recent seqs.
	var got []uint64
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			got = append(got, e.Seq)
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
	if got[len(got)-1] != 5 {
		t.Fatalf("expected most recent event (seq 5) to survive overflow, got %v", got)
	}
}

func TestDisconnectOverflowClosesSubscriptionAfterOverflowEvent(t *testing.T) {
	bus := New(1, nil)
	ch, unsubscribe := bus.Subscribe("dep-1", OverflowDisconnect)
	defer unsubscribe()

	bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "dep-1", Seq: 1})
	bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "dep-1", Seq: 2})

	// drain the first buffered event
	<-ch

	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before delivering overflow event")
		}
		if e.Type != model.EventOverflow {
			t.Fatalf("expected overflow event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	// subsequent publishes must not panic on the closed channel.
	bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "dep-1", Seq: 3})
}

type recordingAudit struct{ events []model.DeploymentEvent }

func (r *recordingAudit) WriteEvent(ctx context.Context, event model.DeploymentEvent) error {
	r.events = append(r.events, event)
	return nil
}

func TestPublishWritesThroughToAuditBeforeFanout(t *testing.T) {
	audit := &recordingAudit{}
	bus := New(4, audit)
	ch, unsubscribe := bus.Subscribe("*", OverflowDropOldest)
	defer unsubscribe()

	bus.Publish(context.Background(), model.DeploymentEvent{DeploymentID: "dep-1", Seq: 1})

	if len(audit.events) != 1 {
		t.Fatalf("expected synchronous audit write, got %d events", len(audit.events))
	}
	<-ch
}
