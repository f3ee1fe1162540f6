package index

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/slipway-ci/slipway/pkg/domain/model"
)

// mintTokenPath is where a trusted-publishing index exchanges an identity
// token for an upload token.
const mintTokenPath = "/_/oidc/mint-token"

// Client uploads distribution artifacts to a package index using the
// trusted-publishing flow: exchange the run's identity token for an upload
// token, then upload each artifact with it.
type Client struct {
	httpClient *http.Client
	mintURL    string
	now        func() time.Time
}

// ClientOption is a functional option for Client configuration
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithMintURL overrides the token exchange endpoint. By default it is
// derived from the upload URL's host, which matches self-hosted indexes;
// indexes that serve uploads on a separate host need the override.
func WithMintURL(u string) ClientOption {
	return func(client *Client) {
		client.mintURL = u
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type mintRequest struct {
	Token string `json:"token"`
}

type mintResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires,omitempty"` // Lifetime in seconds
}

// MintUploadToken exchanges an identity token for an upload token. The
// upload token inherits the identity token's expiry unless the index
// reports a shorter one.
func (c *Client) MintUploadToken(ctx context.Context, indexURL string, token *model.IdentityToken) (*model.UploadToken, error) {
	mintURL := c.mintURL
	if mintURL == "" {
		derived, err := deriveMintURL(indexURL)
		if err != nil {
			return nil, err
		}
		mintURL = derived
	}

	body, err := json.Marshal(mintRequest{Token: token.Raw})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode mint request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mintURL, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create mint request", goerr.V("url", mintURL))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call token exchange", goerr.V("url", mintURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("token exchange rejected",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(msg)))
	}

	var minted mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return nil, goerr.Wrap(err, "failed to decode mint response")
	}
	if minted.Token == "" {
		return nil, goerr.New("token exchange returned empty token")
	}

	expires := token.ExpiresAt
	if minted.Expires > 0 {
		if e := c.now().Add(time.Duration(minted.Expires) * time.Second); e.Before(expires) {
			expires = e
		}
	}

	return &model.UploadToken{
		Value:     minted.Token,
		ExpiresAt: expires,
	}, nil
}

// Upload publishes one artifact to the index upload endpoint. A 409 from
// the index means the file already exists; with skipExisting it is treated
// as success, otherwise it fails the run like any other non-2xx response.
func (c *Client) Upload(ctx context.Context, indexURL string, token *model.UploadToken, art *model.Artifact, project, version string, skipExisting bool) error {
	logger := ctxlog.From(ctx)

	if token.Expired(c.now()) {
		return goerr.New("upload token expired", goerr.V("file", art.Name))
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"name":             project,
		"version":          version,
		"filetype":         art.FileType(),
		"sha256_digest":    art.SHA256,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return goerr.Wrap(err, "failed to write upload field", goerr.V("field", name))
		}
	}

	part, err := writer.CreateFormFile("content", art.Name)
	if err != nil {
		return goerr.Wrap(err, "failed to create upload part", goerr.V("file", art.Name))
	}
	f, err := os.Open(art.Path)
	if err != nil {
		return goerr.Wrap(err, "failed to open artifact", goerr.V("path", art.Path))
	}
	if _, err := io.Copy(part, f); err != nil {
		f.Close()
		return goerr.Wrap(err, "failed to read artifact", goerr.V("path", art.Path))
	}
	f.Close()
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize upload body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, indexURL, &buf)
	if err != nil {
		return goerr.Wrap(err, "failed to create upload request", goerr.V("url", indexURL))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth("__token__", token.Value)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to upload artifact", goerr.V("file", art.Name))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		logger.Info("Uploaded artifact",
			"file", art.Name,
			"size_bytes", art.Size,
			"filetype", art.FileType(),
		)
		return nil
	case resp.StatusCode == http.StatusConflict && skipExisting:
		logger.Warn("Artifact already exists on index, skipping",
			"file", art.Name,
		)
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return goerr.New("index rejected upload",
			goerr.V("file", art.Name),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(msg)))
	}
}

func deriveMintURL(indexURL string) (string, error) {
	u, err := url.Parse(indexURL)
	if err != nil {
		return "", goerr.Wrap(err, "invalid index URL", goerr.V("url", indexURL))
	}
	u.Path = mintTokenPath
	u.RawQuery = ""
	return u.String(), nil
}
