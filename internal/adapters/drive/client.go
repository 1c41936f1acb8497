// Package drive implements the file store ports against the Google Drive v3 REST API.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/tracing"
)

const (
	DefaultBaseURL     = "https://www.googleapis.com/drive/v3"
	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
	DefaultTimeout     = 30 * time.Second

	fileFields = "id, name, mimeType, modifiedTime, webViewLink"
	listFields = "nextPageToken, files(" + fileFields + ")"

	// maxBodyBytes caps downloaded content.
	maxBodyBytes = 32 << 20
)

// Client talks to Google Drive on behalf of the connected account.
type Client struct {
	httpClient  *http.Client
	auth        ports.Authenticator
	baseURL     string
	userInfoURL string
	logger      *logging.Logger
	tracer      *tracing.Tracer
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL sets the Drive API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithUserInfoURL sets the account profile endpoint.
func WithUserInfoURL(u string) ClientOption {
	return func(c *Client) {
		c.userInfoURL = u
	}
}

// WithLogger sets the logger used for dropped items.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracer sets the tracer for outbound calls.
func WithTracer(t *tracing.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient creates a Drive client authenticating through auth.
func NewClient(auth ports.Authenticator, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		auth:        auth,
		baseURL:     DefaultBaseURL,
		userInfoURL: DefaultUserInfoURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	if c.tracer == nil {
		c.tracer = tracing.Default()
	}
	return c
}

var (
	_ ports.RemoteLister   = (*Client)(nil)
	_ ports.ContentFetcher = (*Client)(nil)
)

type apiFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
	WebViewLink  string `json:"webViewLink"`
}

type listResponse struct {
	NextPageToken string    `json:"nextPageToken"`
	Files         []apiFile `json:"files"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// toRemoteFile converts and validates one API item.
func (f apiFile) toRemoteFile() (document.RemoteFile, error) {
	file := document.RemoteFile{
		ID:          f.ID,
		Name:        f.Name,
		ContentKind: f.MimeType,
		ViewURL:     f.WebViewLink,
	}
	if f.ModifiedTime != "" {
		if at, err := time.Parse(time.RFC3339Nano, f.ModifiedTime); err == nil {
			file.ModifiedAt = at.UTC()
		}
	}
	return file, file.Validate()
}

// BuildQuery returns the Drive search expression for supported, non-trashed files,
// optionally restricted to names containing term.
func BuildQuery(term string) string {
	kinds := make([]string, 0, len(document.SupportedKinds))
	for _, k := range document.SupportedKinds {
		kinds = append(kinds, "mimeType = '"+k+"'")
	}
	q := "trashed = false and (" + strings.Join(kinds, " or ") + ")"

	term = strings.TrimSpace(term)
	if term != "" {
		escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(term)
		q += " and name contains '" + escaped + "'"
	}
	return q
}

// List returns supported files. Malformed items are dropped and logged.
func (c *Client) List(ctx context.Context, query ports.ListQuery) ([]document.RemoteFile, error) {
	ctx, span := c.tracer.StartClientSpan(ctx, "drive", "list")

	var files []document.RemoteFile
	err := c.eachItem(ctx, query, func(item apiFile) bool {
		file, err := item.toRemoteFile()
		if err != nil {
			c.logger.WarnContext(ctx, "dropping invalid drive item", "id", item.ID, "error", err)
			return false
		}
		files = append(files, file)
		return true
	})
	if err != nil {
		files = nil
	}
	if query.MaxFiles > 0 && len(files) > query.MaxFiles {
		files = files[:query.MaxFiles]
	}
	span.SetInt("drive.files", len(files))
	span.EndWithError(err)
	return files, err
}

// ListIDs returns the id of every item the query matches, including items List
// would drop as malformed. History pruning keys off it.
func (c *Client) ListIDs(ctx context.Context, query ports.ListQuery) ([]string, error) {
	ctx, span := c.tracer.StartClientSpan(ctx, "drive", "list_ids")

	var ids []string
	err := c.eachItem(ctx, query, func(item apiFile) bool {
		if item.ID == "" {
			return false
		}
		ids = append(ids, item.ID)
		return true
	})
	if err != nil {
		ids = nil
	}
	if query.MaxFiles > 0 && len(ids) > query.MaxFiles {
		ids = ids[:query.MaxFiles]
	}
	span.SetInt("drive.files", len(ids))
	span.EndWithError(err)
	return ids, err
}

// eachItem pages through the query. visit reports whether it kept the item;
// paging stops once MaxFiles items were kept.
func (c *Client) eachItem(ctx context.Context, query ports.ListQuery, visit func(apiFile) bool) error {
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = ports.InteractivePageSize
	}

	params := url.Values{}
	params.Set("q", BuildQuery(query.NameContains))
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("fields", listFields)
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")

	kept := 0
	for {
		var page listResponse
		if err := c.getJSON(ctx, c.baseURL+"/files?"+params.Encode(), &page); err != nil {
			return err
		}
		for _, item := range page.Files {
			if visit(item) {
				kept++
			}
		}

		if page.NextPageToken == "" || query.MaxFiles <= 0 || kept >= query.MaxFiles {
			return nil
		}
		params.Set("pageToken", page.NextPageToken)
	}
}

// Get returns a single file by id.
func (c *Client) Get(ctx context.Context, fileID string) (document.RemoteFile, error) {
	if fileID == "" {
		return document.RemoteFile{}, domainErrors.ErrFileIDRequired
	}
	ctx, span := c.tracer.StartClientSpan(ctx, "drive", "get")

	params := url.Values{}
	params.Set("fields", fileFields)
	params.Set("supportsAllDrives", "true")

	var item apiFile
	err := c.getJSON(ctx, c.baseURL+"/files/"+url.PathEscape(fileID)+"?"+params.Encode(), &item)
	if domainErrors.CodeOf(err) == domainErrors.CodeNotFound {
		err = fmt.Errorf("%w: %s", domainErrors.ErrFileNotInSnapshot, fileID)
	}
	if err != nil {
		span.EndWithError(err)
		return document.RemoteFile{}, err
	}

	file, err := item.toRemoteFile()
	span.EndWithError(err)
	return file, err
}

// Fetch downloads the text content of file. Google Docs types are exported as
// text/plain; other kinds are downloaded as stored.
func (c *Client) Fetch(ctx context.Context, file document.RemoteFile) (string, error) {
	ctx, span := c.tracer.StartClientSpan(ctx, "drive", "fetch")
	span.SetString("file.kind", file.ContentKind)

	endpoint := c.baseURL + "/files/" + url.PathEscape(file.ID)
	if file.IsGoogleDoc() {
		endpoint += "/export?mimeType=" + url.QueryEscape("text/plain")
	} else {
		endpoint += "?alt=media&supportsAllDrives=true"
	}

	resp, err := c.do(ctx, endpoint)
	if err != nil {
		span.EndWithError(err)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = domainErrors.NetworkFailure("failed to read drive content", err)
		span.EndWithError(err)
		return "", err
	}
	span.SetInt("file.bytes", len(body))
	span.End()
	return string(body), nil
}

// UserInfo returns the profile of the connected account.
func (c *Client) UserInfo(ctx context.Context) (ports.UserInfo, error) {
	ctx, span := c.tracer.StartClientSpan(ctx, "drive", "userinfo")
	var info ports.UserInfo
	err := c.getJSON(ctx, c.userInfoURL+"?alt=json", &info)
	span.EndWithError(err)
	return info, err
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domainErrors.NetworkFailure("failed to decode drive response", err)
	}
	return nil
}

// do performs an authenticated GET and maps non-2xx answers to domain errors.
func (c *Client) do(ctx context.Context, endpoint string) (*http.Response, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeValidation, "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainErrors.NetworkFailure("drive request failed", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		c.auth.Invalidate(token)
	}
	return nil, handleErrorResponse(resp)
}

func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return domainErrors.AuthExpired("drive rejected the access token: "+message, nil)
	case http.StatusNotFound:
		return domainErrors.NewError(domainErrors.CodeNotFound, "drive: "+message, nil)
	case http.StatusBadRequest, http.StatusForbidden:
		return domainErrors.NewError(domainErrors.CodeValidation, "drive: "+message, nil)
	default:
		return domainErrors.NetworkFailure("drive: "+message, nil)
	}
}
