package sandbox

import (
	"context"
	"testing"
)

func TestDefaultSpecIsMinimal(t *testing.T) {
	spec := DefaultSpec()

	if spec.Profile != ProfileMinimal {
		t.Errorf("default profile should be minimal, got %s", spec.Profile)
	}
	if !spec.AutoRemove {
		t.Error("default spec should auto-remove on stop")
	}
	if spec.Network != "bridge" {
		t.Errorf("default network should be bridge, got %s", spec.Network)
	}
	if spec.MemoryBytes <= 0 || spec.PidsLimit <= 0 {
		t.Error("default spec should carry resource ceilings")
	}
}

func TestMinimalProfileCapabilities(t *testing.T) {
	p := ProfileMinimal

	drop := p.CapDrop()
	if len(drop) != 1 || drop[0] != "ALL" {
		t.Errorf("minimal profile should drop ALL, got %v", drop)
	}

	for _, cap := range p.CapAdd() {
		switch cap {
		case "SYS_ADMIN", "NET_ADMIN", "NET_RAW", "SYS_PTRACE":
			t.Errorf("minimal profile must not grant %s", cap)
		}
	}
	if p.Privileged() {
		t.Error("minimal profile should not report privileged")
	}
}

func TestPrivilegedProfileIsExplicit(t *testing.T) {
	if !ProfilePrivileged.Privileged() {
		t.Error("privileged profile should report privileged")
	}
	if len(ProfilePrivileged.CapDrop()) != 0 {
		t.Error("privileged profile should not drop capabilities")
	}
}

func TestMockRuntimeRecordsSpec(t *testing.T) {
	rt := NewMockRuntime()
	spec := DefaultSpec()
	spec.MemoryBytes = 1 << 30

	h, err := rt.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mh := rt.LastHandle()
	if mh == nil || mh.ID() != h.ID() {
		t.Fatal("runtime should record the created handle")
	}
	if mh.Spec().MemoryBytes != 1<<30 {
		t.Errorf("handle should carry the requested spec, got %d", mh.Spec().MemoryBytes)
	}
}

func TestMockChannelLineHandler(t *testing.T) {
	rt := NewMockRuntime()
	rt.LineHandler = func(line string) []byte {
		if line == "echo hi" {
			return []byte("hi\r\n")
		}
		return nil
	}

	h, err := rt.Create(context.Background(), DefaultSpec())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ch, err := h.OpenChannel(context.Background(), ChannelConfig{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	if _, err := ch.Write([]byte("echo hi\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 64)
	n, err := ch.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "hi\r\n" {
		t.Errorf("expected scripted response, got %q", buf[:n])
	}
}

func TestMockHandleStopClosesChannels(t *testing.T) {
	rt := NewMockRuntime()
	h, _ := rt.Create(context.Background(), DefaultSpec())
	ch, _ := h.OpenChannel(context.Background(), ChannelConfig{})

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mc := ch.(*MockChannel)
	if !mc.Closed() {
		t.Error("stopping the handle should close open channels")
	}
	if _, err := h.OpenChannel(context.Background(), ChannelConfig{}); err == nil {
		t.Error("opening a channel on a stopped handle should fail")
	}
}
