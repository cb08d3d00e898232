package report_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/cuecam/internal/report"
	"github.com/fakeyudi/cuecam/internal/session"
)

func generateTake(t *rapid.T) *session.Take {
	statuses := []session.TakeStatus{session.TakeRecorded, session.TakeMerged, session.TakeMergeFailed, session.TakeAccepted}
	sec := rapid.Int64Range(1_000_000_000, 1_700_000_000).Draw(t, "unix_sec")
	return &session.Take{
		ID:             rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "id"),
		RecordedAt:     time.Unix(sec, 0).UTC(),
		Status:         rapid.SampledFrom(statuses).Draw(t, "status"),
		MimeType:       "video/webm",
		Bytes:          rapid.IntRange(0, 1<<30).Draw(t, "bytes"),
		Chunks:         rapid.IntRange(0, 1000).Draw(t, "chunks"),
		ResponseID:     rapid.StringMatching(`[0-9]{0,5}`).Draw(t, "response"),
		MergedVideoURL: rapid.StringMatching(`(http://srv/[a-z]{1,8}\.mp4)?`).Draw(t, "url"),
		Accepted:       rapid.Bool().Draw(t, "accepted"),
	}
}

// Feature: cuecam, Property 7: every format carries the take id and status
func TestReportCompleteness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		take := generateTake(t)
		for _, format := range []string{"text", "markdown", "json"} {
			r, err := report.ForFormat(format)
			if err != nil {
				t.Fatalf("ForFormat(%q): %v", format, err)
			}
			out, err := r.Render(take)
			if err != nil {
				t.Fatalf("%s Render: %v", format, err)
			}
			s := string(out)
			if !strings.Contains(s, take.ID) || !strings.Contains(s, string(take.Status)) {
				t.Fatalf("%s output missing id or status:\n%s", format, s)
			}
		}
	})
}

func TestMarkdownSections(t *testing.T) {
	take := &session.Take{ID: "abc", RecordedAt: time.Now(), Status: session.TakeRecorded, Bytes: 2048, Chunks: 3}
	out, err := (&report.MarkdownRenderer{}).Render(take)
	if err != nil {
		t.Fatal(err)
	}
	md := string(out)
	for _, want := range []string{"# Take abc", "## Recording", "## Merge", "_Not merged yet._", "2.0 kB in 3 chunks"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	take.ResponseID, take.MergedVideoURL, take.Error = "17", "http://srv/m.mp4", "boom"
	out, _ = (&report.MarkdownRenderer{}).Render(take)
	md = string(out)
	for _, want := range []string{"- Response: 17", "http://srv/m.mp4", "- Accepted: no", "Last error: boom"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	take := &session.Take{ID: "abc", RecordedAt: time.Unix(1_600_000_000, 0).UTC(), Status: session.TakeMerged, ResponseID: "9"}
	out, err := (&report.JSONRenderer{}).Render(take)
	if err != nil {
		t.Fatal(err)
	}
	var got session.Take
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if !got.RecordedAt.Equal(take.RecordedAt) {
		t.Fatalf("RecordedAt = %v", got.RecordedAt)
	}
	want := *take
	got.RecordedAt, want.RecordedAt = time.Time{}, time.Time{}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, *take)
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := report.ForFormat("yaml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestTable(t *testing.T) {
	out := report.Table([]string{"Check", "Result"}, [][]string{{"ffmpeg", "ok"}, {"camera"}})
	for _, want := range []string{"CHECK", "ffmpeg", "ok", "camera"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if report.Table(nil, nil) != "" {
		t.Error("empty headers should render nothing")
	}
}
