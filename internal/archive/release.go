package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/types"
)

// Publication describes an uploaded evidence bundle.
type Publication struct {
	Tag        string
	ReleaseURL string
	AssetURL   string
}

// Publisher uploads run evidence to GitHub releases.
type Publisher struct {
	client *github.Client
	owner  string
	repo   string
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher for cfg.Repository authenticated with
// cfg.Token. APIURL and UploadURL override the endpoints (GitHub
// Enterprise, tests).
func NewPublisher(cfg config.ArchiveConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.Owner() == "" || cfg.Name() == "" {
		return nil, fmt.Errorf("%w: repository must be owner/name, got %q", config.ErrInvalid, cfg.Repository)
	}

	client := github.NewClient(nil).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		u, err := endpoint(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}
	if cfg.UploadURL != "" {
		u, err := endpoint(cfg.UploadURL)
		if err != nil {
			return nil, err
		}
		client.UploadURL = u
	}

	return &Publisher{
		client: client,
		owner:  cfg.Owner(),
		repo:   cfg.Name(),
		logger: logger.Named("archive"),
		now:    time.Now,
	}, nil
}

func endpoint(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint %q: %v", config.ErrInvalid, raw, err)
	}
	return u, nil
}

// Publish creates a release for run, uploads the zip at zipPath together
// with a JSON summary of run, and returns the zip's download URL.
func (p *Publisher) Publish(ctx context.Context, zipPath string, run *types.RunResult) (*Publication, error) {
	tag := "panelrenew-" + p.now().UTC().Format("20060102-150405")

	summaryPath := strings.TrimSuffix(zipPath, filepath.Ext(zipPath)) + ".json"
	if err := writeSummary(summaryPath, run); err != nil {
		return nil, fmt.Errorf("failed to write run summary: %w", err)
	}

	release, _, err := p.client.Repositories.CreateRelease(ctx, p.owner, p.repo, &github.RepositoryRelease{
		TagName: github.String(tag),
		Name:    github.String(tag),
		Body:    github.String(releaseBody(run)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", tag, err)
	}
	p.logger.Info("Created release", zap.String("tag", tag), zap.Int64("id", release.GetID()))

	var zipAsset *github.ReleaseAsset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		asset, err := p.upload(gctx, release.GetID(), zipPath, "application/zip")
		zipAsset = asset
		return err
	})
	g.Go(func() error {
		_, err := p.upload(gctx, release.GetID(), summaryPath, "application/json")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Publication{
		Tag:        tag,
		ReleaseURL: release.GetHTMLURL(),
		AssetURL:   p.downloadURL(ctx, zipAsset),
	}, nil
}

func (p *Publisher) upload(ctx context.Context, releaseID int64, path, mediaType string) (*github.ReleaseAsset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	asset, _, err := p.client.Repositories.UploadReleaseAsset(ctx, p.owner, p.repo, releaseID, &github.UploadOptions{
		Name:      filepath.Base(path),
		MediaType: mediaType,
	}, f)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
	}
	p.logger.Debug("Uploaded asset", zap.String("name", asset.GetName()), zap.Int("size", asset.GetSize()))
	return asset, nil
}

// downloadURL resolves the signed download link of asset, falling back to
// its public browser URL.
func (p *Publisher) downloadURL(ctx context.Context, asset *github.ReleaseAsset) string {
	rc, redirect, err := p.client.Repositories.DownloadReleaseAsset(ctx, p.owner, p.repo, asset.GetID(), nil)
	if rc != nil {
		rc.Close()
	}
	if err != nil {
		p.logger.Warn("Could not resolve signed asset URL", zap.Error(err))
	}
	if redirect != "" {
		return redirect
	}
	return asset.GetBrowserDownloadURL()
}

func writeSummary(path string, run *types.RunResult) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func releaseBody(run *types.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Outcome: %s\n", run.Outcome)
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if s := run.LoginStrategy(); s != "" {
		fmt.Fprintf(&b, "Login: %s\n", s)
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	fmt.Fprintf(&b, "Screenshots: %d\n", len(run.Screenshots))
	return b.String()
}
