package merge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fakeyudi/cuecam/internal/capture"
	"github.com/fakeyudi/cuecam/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecording() *capture.Recording {
	return &capture.Recording{Data: []byte("webm-bytes-0123456789"), MimeType: capture.DefaultMimeProfile, Chunks: 2}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubmitSendsMultipartForm(t *testing.T) {
	var gotFields map[string]string
	var gotFile []byte
	var gotFileName, gotType, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/merge-videos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, hdr, err := r.FormFile(FieldWebcamVideo)
		require.NoError(t, err)
		defer f.Close()
		gotFile, _ = io.ReadAll(f)
		gotFileName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"responseId": 17, "mergedVideoUrl": "/uploads/merged_17.mp4"})
	}))
	defer srv.Close()

	var lastSent, lastTotal int64
	c := New(srv.URL+"/", 0, nil)
	rec := testRecording()
	res, warnings, err := c.Submit(context.Background(), rec, "prerecorded/prerecorded.mp4",
		profile.SessionContext{UserID: "42", Token: "tok"},
		func(sent, total int64) { lastSent, lastTotal = sent, total })

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "17", res.ResponseID)
	assert.Equal(t, "/uploads/merged_17.mp4", res.MergedVideoURL)
	assert.Equal(t, srv.URL+"/uploads/merged_17.mp4", c.MergedURL(res.MergedVideoURL))

	assert.Equal(t, "prerecorded/prerecorded.mp4", gotFields[FieldPromptPath])
	assert.Equal(t, "42", gotFields[FieldUserID])
	assert.Equal(t, rec.Data, gotFile)
	assert.Equal(t, "webcam_recording.webm", gotFileName)
	assert.Equal(t, capture.DefaultMimeProfile, gotType)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, int64(len(rec.Data)), lastSent)
	assert.Equal(t, int64(len(rec.Data)), lastTotal)
}

func TestSubmitWithoutUserIDWarnsAndProceeds(t *testing.T) {
	var hasUserID bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasUserID = r.MultipartForm.Value[FieldUserID]
		writeJSON(w, http.StatusOK, map[string]any{"responseId": "abc", "mergedVideoUrl": "/m.mp4"})
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	res, warnings, err := c.Submit(context.Background(), testRecording(), "p.mp4", profile.SessionContext{}, nil)
	require.NoError(t, err)
	assert.False(t, hasUserID, "userId must be omitted when unknown")
	assert.Equal(t, []Warning{WarnMissingUserID}, warnings)
	assert.Equal(t, "abc", res.ResponseID)
}

func TestSubmitServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ffmpeg exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, 0, nil).Submit(context.Background(), testRecording(), "p.mp4", profile.SessionContext{UserID: "1"}, nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, MergeFailed, me.Kind)
	assert.Equal(t, 500, me.Status)
	assert.Equal(t, "Failed to merge videos: Internal Server Error - Detail: ffmpeg exploded\n", me.Error())
	assert.True(t, me.Transient())
	assert.Equal(t,
		"Error: The server has encountered a temporary issue. Please try again later. If the problem persists, please contact support.",
		UserMessage(err))
}

func TestSubmitClientErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing webcamVideo", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, 0, nil).Submit(context.Background(), testRecording(), "p.mp4", profile.SessionContext{UserID: "1"}, nil)
	require.Error(t, err)
	msg := UserMessage(err)
	assert.True(t, strings.HasPrefix(msg, "Error processing video: Failed to merge videos: Bad Request - Detail: missing webcamVideo"), msg)
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := New(url, 0, nil).Submit(context.Background(), testRecording(), "p.mp4", profile.SessionContext{}, nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, Unreachable, me.Kind)
	assert.False(t, me.Transient())
}

func TestSubmitEmptyRecording(t *testing.T) {
	_, _, err := New("http://127.0.0.1:1", 0, nil).Submit(context.Background(), &capture.Recording{}, "p.mp4", profile.SessionContext{}, nil)
	assert.ErrorIs(t, err, capture.ErrEmptyRecording)
}

func TestAccept(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	err := c.Accept(context.Background(), "17", srv.URL+"/m.mp4", profile.SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, "/api/questionnaire-response/17/video-url", gotPath)
	assert.Equal(t, srv.URL+"/m.mp4", gotBody["videoUrl"])
}

func TestAcceptWithoutResponseIDSendsNothing(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	err := New(srv.URL, 0, nil).Accept(context.Background(), "", "x", profile.SessionContext{})
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, AcceptFailed, me.Kind)
	assert.False(t, called)
}

func TestAcceptHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := New(srv.URL, 0, nil).Accept(context.Background(), "9", "x", profile.SessionContext{})
	require.EqualError(t, err, "Failed to update video URL: HTTP error! status: 404")
}

func TestLatestVideoURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questionnaire": map[string]string{"video_url": "/uploads/final.mp4"}})
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	got, err := c.LatestVideoURL(context.Background(), profile.SessionContext{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/uploads/final.mp4", got)

	_, err = c.LatestVideoURL(context.Background(), profile.SessionContext{Token: "bad"})
	assert.Error(t, err)
}

func TestMergedURL(t *testing.T) {
	c := New("http://srv:5000/", 0, nil)
	assert.Equal(t, "http://srv:5000/a.mp4", c.MergedURL("a.mp4"))
	assert.Equal(t, "http://srv:5000/a.mp4", c.MergedURL("/a.mp4"))
	assert.Equal(t, "https://cdn/a.mp4", c.MergedURL("https://cdn/a.mp4"))
	assert.Equal(t, "", c.MergedURL(""))
}

func TestUserMessageMarkerInBody(t *testing.T) {
	err := &Error{Kind: MergeFailed, Status: 502, StatusText: "Bad Gateway", Body: "upstream: INTERNAL SERVER ERROR"}
	assert.True(t, err.Transient())
	assert.Equal(t, "Error processing video: boom", UserMessage(errors.New("boom")))
}
