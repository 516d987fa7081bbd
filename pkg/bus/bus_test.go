package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"relmake/services/releaser"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("server.NewServer() error = %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv
}

func TestPublishReleaseEvent(t *testing.T) {
	srv := runJetStream(t)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("nats.Connect() error = %v", err)
	}
	t.Cleanup(nc.Close)
	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("JetStream() error = %v", err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{Name: "RELMAKE", Subjects: []string{"relmake.>"}}); err != nil {
		t.Fatalf("AddStream() error = %v", err)
	}

	b, err := New(srv.ClientURL())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Close)

	want := releaser.ReleaseEvent{
		RunID:   "4b5d0f0e-2b55-4a4c-9d2a-8f6f2f0d9c11",
		Version: "v1.2.3",
		Commit:  "abc",
		Channel: releaser.ChannelRelease,
		Apps:    []string{"oneauth"},
		Files:   []string{"s3://oneauth-files.vitalvas.dev/release/v1.2.3/oneauth_linux_amd64.gz"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Publish(ctx, releaser.PublishedSubject, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	sub, err := js.SubscribeSync(releaser.PublishedSubject, nats.DeliverAll())
	if err != nil {
		t.Fatalf("SubscribeSync() error = %v", err)
	}
	msg, err := sub.NextMsg(10 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg() error = %v", err)
	}

	var got releaser.ReleaseEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("event is not JSON: %v (%q)", err, msg.Data)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishWithoutStream(t *testing.T) {
	srv := runJetStream(t)

	b, err := New(srv.ClientURL())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = b.Publish(ctx, releaser.PublishedSubject, map[string]string{"version": "v1"})
	if !errors.Is(err, nats.ErrNoStreamResponse) {
		t.Fatalf("Publish() error = %v, want %v", err, nats.ErrNoStreamResponse)
	}
}

func TestPublishRequiresSubject(t *testing.T) {
	srv := runJetStream(t)

	b, err := New(srv.ClientURL())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Close)

	if err := b.Publish(context.Background(), "", map[string]string{}); err == nil {
		t.Fatal("Publish() with empty subject error = nil")
	}
}

func TestNilBus(t *testing.T) {
	var b *Bus
	if err := b.Publish(context.Background(), releaser.PublishedSubject, map[string]string{}); err == nil {
		t.Fatal("Publish() on nil bus error = nil")
	}
	b.Close()
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
}
