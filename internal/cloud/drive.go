package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/castmir/vaultmesh/internal/common"
)

const (
	driveAPIBase    = "https://www.googleapis.com/drive/v3"
	driveUploadBase = "https://www.googleapis.com/upload/drive/v3"

	// appDataFolder is the hidden per-application space Drive reserves
	// for app state; the user never sees these files in their Drive.
	appDataFolder = "appDataFolder"
)

// DriveStore implements ObjectStore over the Google Drive REST API using
// the app data folder.
type DriveStore struct {
	client    *http.Client
	sessions  *SessionStore
	apiBase   string
	uploadURL string
	nowFn     func() time.Time
}

type DriveOption func(*DriveStore)

// WithDriveEndpoints points the store at a different API host, for tests.
func WithDriveEndpoints(api, upload string) DriveOption {
	return func(d *DriveStore) {
		d.apiBase = api
		d.uploadURL = upload
	}
}

func WithDriveClient(c *http.Client) DriveOption {
	return func(d *DriveStore) { d.client = c }
}

func NewDriveStore(sessions *SessionStore, opts ...DriveOption) *DriveStore {
	d := &DriveStore{
		client:    &http.Client{Timeout: 30 * time.Second},
		sessions:  sessions,
		apiBase:   driveAPIBase,
		uploadURL: driveUploadBase,
		nowFn:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *DriveStore) Find(ctx context.Context, name string) (*ObjectInfo, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("name='%s'", name))
	q.Set("spaces", appDataFolder)
	q.Set("fields", "files(id,name)")

	body, err := d.do(ctx, http.MethodGet, d.apiBase+"/files?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Files []struct {
			Id   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding file list: %w", err)
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("object %s: %w", name, common.ErrNotFound)
	}
	return &ObjectInfo{ID: out.Files[0].Id, Name: out.Files[0].Name}, nil
}

// Create uploads a new file via a multipart/related request: a metadata
// part naming the file and placing it in the app data folder, followed by
// the media part.
func (d *DriveStore) Create(ctx context.Context, name string, body []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return "", err
	}
	meta := map[string]any{"name": name, "parents": []string{appDataFolder}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "application/json")
	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return "", err
	}
	if _, err := mediaPart.Write(body); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	contentType := "multipart/related; boundary=" + mw.Boundary()
	resp, err := d.do(ctx, http.MethodPost, d.uploadURL+"/files?uploadType=multipart", contentType, buf.Bytes())
	if err != nil {
		return "", err
	}
	var out struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	return out.Id, nil
}

// Replace overwrites the file's content in place with a raw media upload.
func (d *DriveStore) Replace(ctx context.Context, id string, body []byte) error {
	_, err := d.do(ctx, http.MethodPatch, d.uploadURL+"/files/"+id+"?uploadType=media", "application/json", body)
	return err
}

func (d *DriveStore) Download(ctx context.Context, id string) ([]byte, error) {
	return d.do(ctx, http.MethodGet, d.apiBase+"/files/"+id+"?alt=media", "", nil)
}

// do performs one authenticated request. A 401 clears the cached session
// and is never retried; transient failures back off and retry.
func (d *DriveStore) do(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	sess, err := d.sessions.Current()
	if err != nil {
		return nil, err
	}
	if !sess.Valid(d.nowFn()) {
		d.sessions.Clear()
		return nil, common.ErrSessionExpired
	}

	var out []byte
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrCloudIO, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			d.sessions.Clear()
			return common.ErrSessionExpired
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%w: status %d", common.ErrCloudIO, resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("%w: status %d", common.ErrCloudIO, resp.StatusCode)
		}

		out, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrCloudIO, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
