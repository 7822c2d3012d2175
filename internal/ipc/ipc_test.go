package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kiosk/internal/api"
	"kiosk/internal/identifier"
	"kiosk/internal/ipc"
)

type backendStub struct {
	submitted []string
}

func (b *backendStub) Status(context.Context) api.DaemonStatus {
	return api.DaemonStatus{Running: true, PID: 7, Pipeline: api.PipelineStatus{Processed: 2}}
}

func (b *backendStub) Presence(context.Context) api.PresenceView {
	return api.PresenceView{Day: "2026-04-01", TotalEnters: 9, Present: []api.PresentMember{{Identifier: "2210177", MemberID: "m1"}}}
}

func (b *backendStub) Submit(_ context.Context, raw string) (identifier.ID, error) {
	id, err := identifier.Normalize(raw)
	if err != nil {
		return "", err
	}
	b.submitted = append(b.submitted, id.String())
	return id, nil
}

func (b *backendStub) TestNotification(context.Context) (bool, string, error) {
	return false, "ntfy topic not configured", nil
}

func startServer(t *testing.T, backend ipc.Backend) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "kiosk.sock")
	srv, err := ipc.NewServer(ctx, socket, backend, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	time.Sleep(20 * time.Millisecond)
	return socket
}

func TestIPCServerClient(t *testing.T) {
	backend := &backendStub{}
	socket := startServer(t, backend)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID != 7 || status.Pipeline.Processed != 2 {
		t.Fatalf("unexpected status %+v", status)
	}

	view, err := client.Presence()
	if err != nil {
		t.Fatalf("Presence RPC failed: %v", err)
	}
	if view.TotalEnters != 9 || len(view.Present) != 1 || view.Present[0].MemberID != "m1" {
		t.Fatalf("unexpected presence %+v", view)
	}

	resp, err := client.Submit("22101770")
	if err != nil {
		t.Fatalf("Submit RPC failed: %v", err)
	}
	if !resp.Accepted || resp.Identifier != "2210177" || resp.Kind != "member_number" {
		t.Fatalf("unexpected submit response %+v", resp)
	}

	rejected, err := client.Submit("12")
	if err != nil {
		t.Fatalf("Submit RPC for invalid input failed: %v", err)
	}
	if rejected.Accepted || rejected.Message == "" {
		t.Fatalf("expected rejection with message, got %+v", rejected)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("expected one queued identifier, got %v", backend.submitted)
	}

	note, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if note.Sent || note.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response %+v", note)
	}
}

type failingBackend struct{ backendStub }

func (failingBackend) Submit(context.Context, string) (identifier.ID, error) {
	return "", errors.New("queue closed")
}

func TestSubmitPropagatesBackendFailure(t *testing.T) {
	socket := startServer(t, &failingBackend{})
	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Submit("2210177"); err == nil || !strings.Contains(err.Error(), "queue closed") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestDialWithoutDaemonFails(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatal("expected dial error without a daemon")
	}
}
