// Package merge talks to the interview server: it uploads a take for merging
// with the prompt video, accepts merged takes and reads back the dashboard.
package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fakeyudi/cuecam/internal/capture"
	"github.com/fakeyudi/cuecam/internal/profile"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Form field and file names expected by the merge endpoint.
const (
	FieldWebcamVideo = "webcamVideo"
	FieldPromptPath  = "prerecordedVideoPath"
	FieldUserID      = "userId"
	WebcamFileName   = "webcam_recording"
	mergePath        = "/merge-videos"
	dashboardPath    = "/api/dashboard"
	acceptPathFormat = "/api/questionnaire-response/%s/video-url"
)

// Result is the server's answer to a successful merge.
type Result struct {
	ResponseID     string
	MergedVideoURL string
}

// ProgressFunc is called as the upload body is assembled.
type ProgressFunc func(sent, total int64)

// Client is the interview server client.
type Client struct {
	http    *resty.Client
	baseURL string
	log     *zap.Logger
}

// New returns a client for baseURL. A zero timeout means requests are only
// bounded by their context.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	hc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		hc.SetTimeout(timeout)
	}
	return &Client{http: hc, baseURL: baseURL, log: log}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// MergedURL resolves a server-relative merged video path.
func (c *Client) MergedURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

type mergeResponse struct {
	ResponseID     flexID `json:"responseId"`
	MergedVideoURL string `json:"mergedVideoUrl"`
}

// flexID accepts either a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Submit uploads rec for merging with the prompt at promptRef. A missing
// user id does not stop the upload; it is reported as a warning.
func (c *Client) Submit(ctx context.Context, rec *capture.Recording, promptRef string, sc profile.SessionContext, progress ProgressFunc) (Result, []Warning, error) {
	if rec == nil || len(rec.Data) == 0 {
		return Result{}, nil, capture.ErrEmptyRecording
	}

	var warnings []Warning
	form := map[string]string{FieldPromptPath: promptRef}
	if sc.UserID != "" {
		form[FieldUserID] = sc.UserID
	} else {
		warnings = append(warnings, WarnMissingUserID)
		c.log.Warn("user id missing; uploading without it")
	}

	body := &progressReader{r: bytes.NewReader(rec.Data), total: int64(len(rec.Data)), fn: progress}

	var out mergeResponse
	req := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(form).
		SetMultipartField(FieldWebcamVideo, WebcamFileName+rec.Extension(), rec.MimeType, body).
		SetResult(&out)
	if sc.Token != "" {
		req.SetAuthToken(sc.Token)
	}

	start := time.Now()
	resp, err := req.Post(mergePath)
	if err != nil {
		c.log.Error("merge request failed", zap.Error(err))
		return Result{}, warnings, &Error{Kind: Unreachable, Err: err}
	}
	if !resp.IsSuccess() {
		me := &Error{
			Kind:       MergeFailed,
			Status:     resp.StatusCode(),
			StatusText: statusText(resp.Status(), resp.StatusCode()),
			Body:       string(resp.Body()),
		}
		c.log.Error("merge rejected", zap.Int("status", me.Status), zap.String("body", me.Body))
		return Result{}, warnings, me
	}

	res := Result{ResponseID: string(out.ResponseID), MergedVideoURL: out.MergedVideoURL}
	c.log.Info("merge completed",
		zap.String("response_id", res.ResponseID),
		zap.String("merged_url", res.MergedVideoURL),
		zap.Int("bytes", len(rec.Data)),
		zap.Duration("elapsed", time.Since(start)))
	return res, warnings, nil
}

// Accept records videoURL as the accepted answer for responseID.
func (c *Client) Accept(ctx context.Context, responseID, videoURL string, sc profile.SessionContext) error {
	if responseID == "" {
		return &Error{Kind: AcceptFailed, Err: fmt.Errorf("responseId is missing")}
	}
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"videoUrl": videoURL})
	if sc.Token != "" {
		req.SetAuthToken(sc.Token)
	}
	resp, err := req.Post(fmt.Sprintf(acceptPathFormat, url.PathEscape(responseID)))
	if err != nil {
		return &Error{Kind: AcceptFailed, Err: err}
	}
	if !resp.IsSuccess() {
		return &Error{
			Kind:       AcceptFailed,
			Status:     resp.StatusCode(),
			StatusText: statusText(resp.Status(), resp.StatusCode()),
			Body:       string(resp.Body()),
		}
	}
	c.log.Info("take accepted", zap.String("response_id", responseID))
	return nil
}

type dashboard struct {
	Questionnaire *struct {
		VideoURL string `json:"video_url"`
	} `json:"questionnaire"`
}

// LatestVideoURL reads the user's current merged video from the dashboard.
// It returns "" when the dashboard has none.
func (c *Client) LatestVideoURL(ctx context.Context, sc profile.SessionContext) (string, error) {
	var d dashboard
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(sc.Token).
		SetResult(&d).
		Get(dashboardPath)
	if err != nil {
		return "", &Error{Kind: Unreachable, Err: err}
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("failed to fetch answers: status %d", resp.StatusCode())
	}
	if d.Questionnaire == nil {
		return "", nil
	}
	return c.MergedURL(d.Questionnaire.VideoURL), nil
}

// statusText extracts the reason phrase from a status line such as
// "500 INTERNAL SERVER ERROR".
func statusText(status string, code int) string {
	text := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	if text == "" {
		text = http.StatusText(code)
	}
	return text
}

// progressReader reports how much of r has been consumed.
type progressReader struct {
	r     io.Reader
	total int64
	sent  atomic.Int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.fn(p.sent.Add(int64(n)), p.total)
	}
	return n, err
}
