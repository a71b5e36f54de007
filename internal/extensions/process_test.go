package extensions

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCallToolSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greet")
	writeExecutable(t, path, "#!/bin/sh\necho \"hello from tool\"\n")

	out, err := CallTool(context.Background(), Tool{Name: "greet", Path: path}, nil, time.Second)
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if out != "hello from tool" {
		t.Fatalf("output = %q, want %q", out, "hello from tool")
	}
}

func TestCallToolNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fail")
	writeExecutable(t, path, "#!/bin/sh\necho broke >&2\nexit 1\n")

	_, err := CallTool(context.Background(), Tool{Name: "fail", Path: path}, nil, time.Second)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}

func TestCallToolTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow")
	writeExecutable(t, path, "#!/bin/sh\nsleep 5\necho done\n")

	_, err := CallTool(context.Background(), Tool{Name: "slow", Path: path}, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestProcessChannelRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echo_channel")
	writeExecutable(t, path, `#!/bin/sh
if [ "$1" = "connect" ]; then
  echo '{"text":"hello","reply_to":"room1"}'
  read line
  exit 0
fi
`)

	pc := NewProcessChannel(Channel{Name: "fake", Path: path})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pc.Close()

	msg, err := pc.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Text != "hello" || msg.ReplyTo != "room1" {
		t.Fatalf("msg = %+v, want text=hello reply_to=room1", msg)
	}

	if err := pc.Send(ctx, "room1", "reply"); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestProcessChannelRecvCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "silent_channel")
	writeExecutable(t, path, "#!/bin/sh\nif [ \"$1\" = \"connect\" ]; then sleep 5; fi\n")

	pc := NewProcessChannel(Channel{Name: "silent", Path: path})
	ctx := context.Background()
	if err := pc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pc.Close()

	recvCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := pc.Recv(recvCtx); err == nil {
		t.Fatal("expected recv to be cancelled")
	}
}
