package device

import (
	"testing"

	"pgregory.net/rapid"
)

func TestHubDeliversInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vals := rapid.SliceOfN(rapid.Int(), 0, 16).Draw(t, "vals")
		h := newHub[int](16)
		ch, cancel := h.subscribe()
		defer cancel()
		for _, v := range vals {
			h.publish(v)
		}
		for i, want := range vals {
			if got := <-ch; got != want {
				t.Fatalf("value %d: got %d, want %d", i, got, want)
			}
		}
	})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := newHub[int](1)
	ch, cancel := h.subscribe()
	defer cancel()
	h.publish(1)
	h.publish(2) // dropped, buffer full
	if got := <-ch; got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	h := newHub[int](1)
	ch, cancel := h.subscribe()
	h.close()
	h.close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	cancel() // no panic after close

	late, _ := h.subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribing to a closed hub must yield a closed channel")
	}
}

func TestStreamHandleWithoutAudio(t *testing.T) {
	h := &StreamHandle{video: newVideoTrack(nil)}
	ch, cancel := h.SubscribeAudio()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed audio channel")
	}
	var nilHandle *StreamHandle
	if _, ok := nilHandle.LatestFrame(); ok {
		t.Fatal("nil handle must have no frame")
	}
}

func TestFFmpegArgsIncludeAudioOnFD3(t *testing.T) {
	d := &FFmpegDriver{VideoFormat: "v4l2", AudioFormat: "alsa", Camera: "/dev/video0", Microphone: "default"}
	args := d.args(Format{Width: 320, Height: 240, FrameRate: 15}, true)
	var sawRaw, sawPCM bool
	for i, a := range args {
		if a == "pipe:1" && args[i-1] == "rawvideo" {
			sawRaw = true
		}
		if a == "pipe:3" && args[i-1] == "s16le" {
			sawPCM = true
		}
	}
	if !sawRaw || !sawPCM {
		t.Fatalf("missing outputs in %v", args)
	}
	if even(641, 0) != 640 || even(0, 480) != 480 {
		t.Fatal("even() must round down and apply fallback")
	}
}
