package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const rawAssetType = api.AssetType("raw")

// ErrObjectNotFound is returned when no asset exists for a path.
var ErrObjectNotFound = errors.New("cloudinary object not found")

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName       string
	APIKey          string
	APISecret       string
	Folder          string
	DownloadTimeout time.Duration
}

// Service stores submission files as raw Cloudinary assets addressed by path.
type Service struct {
	client     *cloudinary.Cloudinary
	folder     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores the content as a raw asset whose public id is the object path
// and returns that path.
func (s *Service) Upload(ctx context.Context, objectPath string, reader io.Reader) (string, error) {
	overwrite := true
	uniqueFilename := false

	params := uploader.UploadParams{
		PublicID:       s.publicID(objectPath),
		ResourceType:   string(rawAssetType),
		Overwrite:      &overwrite,
		UniqueFilename: &uniqueFilename,
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("url", result.SecureURL).Msg("file uploaded to cloudinary")

	return objectPath, nil
}

// Download resolves the asset URL for the path and fetches its content.
func (s *Service) Download(ctx context.Context, objectPath string) ([]byte, error) {
	publicID := s.publicID(objectPath)

	asset, err := s.client.Admin.Asset(ctx, admin.AssetParams{
		PublicID:  publicID,
		AssetType: rawAssetType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset %s: %w", publicID, err)
	}
	if asset.Error.Message != "" || asset.SecureURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, publicID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.SecureURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, publicID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download asset %s: unexpected status %d", publicID, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", publicID, err)
	}
	return content, nil
}

func (s *Service) publicID(objectPath string) string {
	cleaned := strings.TrimPrefix(path.Clean("/"+objectPath), "/")
	if s.folder == "" {
		return cleaned
	}
	return s.folder + "/" + cleaned
}
