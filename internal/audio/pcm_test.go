package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPCMConversions(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	back := PCMBytesToInt16(Int16ToPCMBytes(samples))
	for i := range samples {
		if back[i] != samples[i] {
			t.Fatalf("sample %d: expected %d got %d", i, samples[i], back[i])
		}
	}
	clipped := Float32ToInt16([]float32{2, -2, 0})
	if clipped[0] != 32767 || clipped[1] != -32767 || clipped[2] != 0 {
		t.Fatalf("unexpected clipping %v", clipped)
	}
}

func TestBufferFramesAndDuration(t *testing.T) {
	buf := Buffer{Format: Format{SampleRate: 16000, Channels: 2}, Samples: make([]int16, 2048)}
	if buf.Frames() != 1024 {
		t.Fatalf("expected 1024 frames, got %d", buf.Frames())
	}
	if buf.Duration() != 64*time.Millisecond {
		t.Fatalf("expected 64ms, got %v", buf.Duration())
	}
	clone := buf.Clone()
	clone.Samples[0] = 7
	if buf.Samples[0] == 7 {
		t.Fatal("clone shares sample storage")
	}
}

func TestWAVDeviceReplaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]int16, 4096)
	for i := range samples {
		samples[i] = int16(i)
	}
	if err := WriteWAV(f, Int16ToPCMBytes(samples), Format{SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	f.Close()

	dev, err := NewWAVDevice(path, false)
	if err != nil {
		t.Fatalf("open wav device: %v", err)
	}
	format, _ := dev.InputFormat()
	if format != (Format{SampleRate: 16000, Channels: 1}) {
		t.Fatalf("unexpected format %v", format)
	}

	got := make(chan Buffer, 8)
	if err := dev.Prepare(format, 1024, func(b Buffer) { got <- b }); err != nil {
		t.Fatal(err)
	}
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	defer dev.Stop()

	select {
	case b := <-got:
		if b.Frames() != 1024 {
			t.Fatalf("expected 1024 frames, got %d", b.Frames())
		}
		if b.Samples[10] != 10 {
			t.Fatalf("unexpected sample value %d", b.Samples[10])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for wav buffer")
	}
}

func TestSyntheticDeviceTone(t *testing.T) {
	dev, err := NewSyntheticDevice(Format{SampleRate: 8000, Channels: 1}, 440)
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan Buffer, 4)
	if err := dev.Prepare(Format{SampleRate: 8000, Channels: 1}, 256, func(b Buffer) { got <- b }); err != nil {
		t.Fatal(err)
	}
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-got:
		if RMS(b.Samples) == 0 {
			t.Fatal("expected a non-silent tone")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for synthetic buffer")
	}
	if err := dev.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}

func TestHostConfigurator(t *testing.T) {
	c := NewHostConfigurator()
	if err := c.Configure(RecordOptions()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !c.Active() {
		t.Fatal("expected active session")
	}
	_ = c.Deactivate()
	if c.Active() {
		t.Fatal("expected inactive session")
	}
	err := c.Configure(SessionOptions{Category: "playback", Mode: ModeMeasurement})
	if _, ok := err.(*SessionConfigurationError); !ok {
		t.Fatalf("expected *SessionConfigurationError, got %v", err)
	}
	if _, err := OptionsFromStrings("record", "voice_chat"); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}
