// Package remote talks to the dappled publish/clone service.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"runtime"
	"strings"
	"time"

	"dappled/internal/config"
	"dappled/internal/logger"
)

// Client is an HTTP client for one service host.
type Client struct {
	base   string
	client *http.Client
}

// NewClient creates a client for settings.Host. TLS verification is off when
// the host was overridden, as development servers use self-signed certificates.
func NewClient(settings *config.Settings) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if settings.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		base:   strings.TrimRight(settings.Host, "/"),
		client: &http.Client{Transport: tr, Timeout: 5 * time.Minute},
	}
}

// CloneData is a published project as the service returns it.
type CloneData struct {
	PublishID  string  `json:"publish_id"`
	Version    Version `json:"version"`
	DappledYML string  `json:"dappled_yml"`
	Notebook   string  `json:"notebook"`
	// Env is the environment.yml, sent only when asked for.
	Env string `json:"env"`
}

// PublishResult identifies a newly published version.
type PublishResult struct {
	PublishID string  `json:"publish_id"`
	Version   Version `json:"version"`
}

// Version is a published version number. The service sends it as a JSON number or string.
type Version string

func (v *Version) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid version %s: %w", b, err)
	}
	*v = Version(n.String())
	return nil
}

// Credentials authenticate publish and name requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PublishFiles are the project files uploaded by Publish.
type PublishFiles struct {
	Manifest         []byte
	NotebookFilename string
	Notebook         []byte
	Environment      []byte
}

// status is the envelope every response carries.
type status struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// Clone fetches a published project. With withEnv the exported environment
// for this platform is included.
func (c *Client) Clone(ctx context.Context, id string, withEnv bool) (*CloneData, error) {
	if id == "" {
		return nil, config.Fail("need to specify a notebook to clone")
	}
	q := url.Values{"id": {id}}
	if withEnv {
		q.Set("platform", Platform())
		q.Set("bits", Bits())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/clone?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var data CloneData
	if err := c.do(req, &data); err != nil {
		return nil, err
	}
	if data.PublishID == "" || data.DappledYML == "" {
		return nil, fmt.Errorf("clone %s: incomplete response from %s", id, c.base)
	}
	return &data, nil
}

// Publish uploads the project as a new version.
func (c *Client) Publish(ctx context.Context, creds Credentials, files PublishFiles) (*PublishResult, error) {
	options, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	parts := []struct {
		field, filename, contentType string
		data                         []byte
	}{
		{"options", "options.json", "application/json", options},
		{"dappled.yml", config.ManifestFile, "text/x-yaml", files.Manifest},
		{"notebook.ipynb", files.NotebookFilename, "application/json", files.Notebook},
		{"environment.yml", "environment.yml", "text/x-yaml", files.Environment},
	}
	for _, p := range parts {
		if err := writePart(mw, p.field, p.filename, p.contentType, p.data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/publish", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res PublishResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Name registers shortname for the published notebook id under the user's
// account and returns the service's message.
func (c *Client) Name(ctx context.Context, creds Credentials, id, shortname string) (string, error) {
	payload, err := json.Marshal(struct {
		Credentials
		ID        string `json:"id"`
		Shortname string `json:"shortname"`
	}{creds, id, shortname})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/name", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var st status
	if err := c.do(req, &st); err != nil {
		return "", err
	}
	return st.Message, nil
}

// do sends req and decodes the JSON response into out. A response with
// "success": false becomes a ToolError carrying the service's message.
func (c *Client) do(req *http.Request, out any) error {
	logger.Debug("[DEBUG] %s %s\n", req.Method, req.URL.Redacted())
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.base, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("[WARN] Failed to close response body: %v\n", cerr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", req.URL.Path, err)
	}

	var st status
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%s %s: HTTP %d with non-JSON body: %.200s", req.Method, req.URL.Path, resp.StatusCode, data)
	}
	if st.Success != nil && !*st.Success {
		msg := st.Message
		if msg == "" {
			msg = fmt.Sprintf("%s failed", req.URL.Path)
		}
		return config.Fail("%s", msg)
	}
	if resp.StatusCode >= 400 {
		if st.Message != "" {
			return config.Fail("%s", st.Message)
		}
		return fmt.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func writePart(mw *multipart.Writer, field, filename, contentType string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Platform names this machine the way conda does: linux-64, osx-64, win-32...
func Platform() string {
	goos := runtime.GOOS
	switch goos {
	case "darwin":
		goos = "osx"
	case "windows":
		goos = "win"
	}
	arch := Bits()
	switch runtime.GOARCH {
	case "arm64":
		arch = "aarch64"
		if goos == "osx" {
			arch = "arm64"
		}
	case "ppc64le":
		arch = "ppc64le"
	}
	return goos + "-" + arch
}

// Bits is the pointer width of this machine.
func Bits() string {
	switch runtime.GOARCH {
	case "386", "arm", "mips", "mipsle":
		return "32"
	default:
		return "64"
	}
}
