package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"defaulter/internal/config"
	"defaulter/internal/logging"
	"defaulter/internal/selection"
	"defaulter/internal/update"
)

const (
	productName    = "Defaulter"
	productVersion = "1.0.0"
	errorBodyLimit = 2048
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL          string
	PlexTVURL        string
	OwnerToken       string
	ClientIdentifier string
	DeviceName       string
	// MetadataRequestsPerSecond throttles reads; 0 disables throttling.
	MetadataRequestsPerSecond int
	HTTP                      HTTPDoer
	Logger                    *slog.Logger
}

// Client is a Plex Media Server and plex.tv client.
type Client struct {
	baseURL          string
	plexTVURL        string
	ownerToken       string
	clientIdentifier string
	deviceName       string
	http             HTTPDoer
	limiter          *rate.Limiter
	logger           *slog.Logger
}

// New constructs a client. A nil HTTP backend gets a 10 second http.Client.
func New(opts Options) *Client {
	doer := opts.HTTP
	if doer == nil {
		doer = &http.Client{Timeout: 10 * time.Second}
	}
	var limiter *rate.Limiter
	if opts.MetadataRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MetadataRequestsPerSecond), opts.MetadataRequestsPerSecond)
	}
	deviceName := strings.TrimSpace(opts.DeviceName)
	if deviceName == "" {
		deviceName = productName
	}
	return &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		plexTVURL:        strings.TrimRight(strings.TrimSpace(opts.PlexTVURL), "/"),
		ownerToken:       opts.OwnerToken,
		clientIdentifier: opts.ClientIdentifier,
		deviceName:       deviceName,
		http:             doer,
		limiter:          limiter,
		logger:           logging.NewComponentLogger(opts.Logger, "plex"),
	}
}

// NewFromConfig builds a client from the [plex] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return New(Options{
		BaseURL:                   cfg.Plex.URL,
		PlexTVURL:                 cfg.Plex.PlexTVURL,
		OwnerToken:                cfg.Plex.OwnerToken,
		ClientIdentifier:          cfg.Plex.ClientIdentifier,
		DeviceName:                cfg.Plex.DeviceName,
		MetadataRequestsPerSecond: cfg.Plex.MetadataRequestsPerSecond,
		HTTP:                      &http.Client{Timeout: cfg.RequestTimeout()},
		Logger:                    logger,
	})
}

// Libraries lists the movie and show sections of the server.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	var container mediaContainer
	if err := c.get(ctx, c.baseURL, "/library/sections", c.ownerToken, false, &container); err != nil {
		return nil, err
	}
	libraries := make([]Library, 0, len(container.Directories))
	for _, dir := range container.Directories {
		if dir.Key == "" || (dir.Type != "movie" && dir.Type != "show") {
			continue
		}
		libraries = append(libraries, Library{Key: dir.Key, Type: dir.Type, Title: dir.Title})
	}
	return libraries, nil
}

// Items lists the top-level entries of a section updated after since, a Unix
// timestamp. A since of 0 returns everything.
func (c *Client) Items(ctx context.Context, sectionKey string, since int64) ([]Item, error) {
	var container mediaContainer
	path := "/library/sections/" + url.PathEscape(sectionKey) + "/all"
	if err := c.get(ctx, c.baseURL, path, c.ownerToken, true, &container); err != nil {
		return nil, err
	}
	var items []Item
	for _, meta := range container.entries() {
		if meta.UpdatedAt > since {
			items = append(items, meta.item())
		}
	}
	return items, nil
}

// Children lists the seasons of a show or the episodes of a season.
func (c *Client) Children(ctx context.Context, ratingKey string) ([]Item, error) {
	var container mediaContainer
	path := "/library/metadata/" + url.PathEscape(ratingKey) + "/children"
	if err := c.get(ctx, c.baseURL, path, c.ownerToken, true, &container); err != nil {
		return nil, err
	}
	entries := container.entries()
	items := make([]Item, 0, len(entries))
	for _, meta := range entries {
		items = append(items, meta.item())
	}
	return items, nil
}

// Part fetches the audio and subtitle tracks of an item's first media part.
// Items without a usable part come back with no tracks.
func (c *Client) Part(ctx context.Context, ratingKey string) (selection.Part, error) {
	var container mediaContainer
	path := "/library/metadata/" + url.PathEscape(ratingKey)
	if err := c.get(ctx, c.baseURL, path, c.ownerToken, true, &container); err != nil {
		return selection.Part{}, err
	}
	entries := container.entries()
	if len(entries) == 0 {
		return selection.Part{RatingKey: ratingKey, Title: "title unknown"}, nil
	}
	meta := entries[0]
	part := selection.Part{RatingKey: ratingKey, Title: meta.displayTitle()}
	if meta.RatingKey != "" {
		part.RatingKey = meta.RatingKey
	}
	if len(meta.Media) == 0 || len(meta.Media[0].Parts) == 0 || meta.Media[0].Parts[0].ID == 0 || len(meta.Media[0].Parts[0].Streams) == 0 {
		logging.WarnWithContext(c.logger, "item has invalid media structure; skipping", "invalid_media_structure",
			logging.String("rating_key", part.RatingKey),
			logging.String("title", part.Title),
			logging.String(logging.FieldImpact, "no default tracks are set for this item"),
		)
		return part, nil
	}
	raw := meta.Media[0].Parts[0]
	part.PartID = raw.ID
	for _, stream := range raw.Streams {
		if track, ok := stream.track(); ok {
			part.Tracks = append(part.Tracks, track)
		}
	}
	return part, nil
}

// SharedUsers lists the plex.tv users this server is shared with, along with
// their server access tokens.
func (c *Client) SharedUsers(ctx context.Context) ([]SharedUser, error) {
	if strings.TrimSpace(c.clientIdentifier) == "" {
		return nil, fmt.Errorf("plex shared users: client identifier not configured")
	}
	var container mediaContainer
	path := "/api/servers/" + url.PathEscape(c.clientIdentifier) + "/shared_servers"
	if err := c.get(ctx, c.plexTVURL, path, c.ownerToken, false, &container); err != nil {
		return nil, err
	}
	users := make([]SharedUser, 0, len(container.Shared))
	for _, shared := range container.Shared {
		if shared.Username == "" {
			continue
		}
		users = append(users, SharedUser{Username: shared.Username, AccessToken: shared.AccessToken})
	}
	return users, nil
}

// CheckAccess reports whether token can open the section. Any failure,
// including a non-200 answer, means no access.
func (c *Client) CheckAccess(ctx context.Context, token, sectionKey string) error {
	path := "/library/sections/" + url.PathEscape(sectionKey)
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL, path, token, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("plex access check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: http.MethodGet, Path: path, Status: resp.StatusCode}
	}
	return nil
}

// SetDefaultStreams stores the plan's selections as the viewer's defaults
// for the part. A 2xx answer is returned as a Response; anything else is a
// *StatusError.
func (c *Client) SetDefaultStreams(ctx context.Context, viewer, token string, plan selection.Plan) (update.Response, error) {
	query := url.Values{}
	if plan.Audio != nil && plan.Audio.ID != 0 {
		query.Set("audioStreamID", strconv.FormatInt(plan.Audio.ID, 10))
	}
	if plan.Subtitles != nil && plan.Subtitles.ID >= 0 {
		query.Set("subtitleStreamID", strconv.FormatInt(plan.Subtitles.ID, 10))
	}
	path := "/library/parts/" + strconv.FormatInt(plan.PartID, 10)
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL, path, token, query)
	if err != nil {
		return update.Response{}, err
	}
	req.Header.Set("X-Plex-Device-Name", c.deviceName+"/"+viewer)
	if viewer != "" {
		req.Header.Set("X-Plex-Username", viewer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return update.Response{}, fmt.Errorf("plex set default streams: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return update.Response{StatusCode: resp.StatusCode}, statusError(resp, http.MethodPost, path)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return update.Response{StatusCode: resp.StatusCode}, nil
}

func (c *Client) get(ctx context.Context, base, path, token string, limited bool, out any) error {
	if limited && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, http.MethodGet, base, path, token, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("plex GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp, http.MethodGet, path)
	}
	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode plex %s: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, base, path, token string, query url.Values) (*http.Request, error) {
	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build plex request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	applyStandardHeaders(req, c.clientIdentifier, c.deviceName)
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
	return req, nil
}

func statusError(resp *http.Response, method, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func applyStandardHeaders(req *http.Request, clientIdentifier, deviceName string) {
	if clientIdentifier != "" {
		req.Header.Set("X-Plex-Client-Identifier", clientIdentifier)
	}
	req.Header.Set("X-Plex-Product", productName)
	req.Header.Set("X-Plex-Version", productVersion)
	req.Header.Set("X-Plex-Device-Name", deviceName)
	req.Header.Set("X-Plex-Platform", runtime.GOOS)
}

// entries merges Directory and Video children in document order per kind;
// Plex never mixes them in one container.
func (m mediaContainer) entries() []xmlMetadata {
	if len(m.Videos) == 0 {
		return m.Directories
	}
	if len(m.Directories) == 0 {
		return m.Videos
	}
	return append(append([]xmlMetadata(nil), m.Directories...), m.Videos...)
}
