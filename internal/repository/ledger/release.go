package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oshokin/pybi-publisher/internal/api/github"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
)

// assetContentType is declared for every uploaded artifact.
const assetContentType = "application/zip"

var errMissingToken = errors.New("no release token configured")

// ReleaseLedger publishes artifacts as assets of per-version releases.
type ReleaseLedger struct {
	// client talks to the releases API.
	client *github.Client
	// releases memoizes resolved releases by tag for the lifetime of the ledger.
	releases *gocache.Cache
	// extension selects which assets count as artifacts.
	extension string
}

// NewReleaseLedger returns a ledger over the releases reachable through client.
func NewReleaseLedger(client *github.Client, extension string) *ReleaseLedger {
	if extension == "" {
		extension = pybi.DefaultExtension
	}

	return &ReleaseLedger{
		client:    client,
		releases:  gocache.New(gocache.NoExpiration, 0),
		extension: extension,
	}
}

// String implements Ledger.
func (l *ReleaseLedger) String() string {
	return "releases of " + l.client.Repository()
}

// Snapshot lists artifact assets across all releases.
func (l *ReleaseLedger) Snapshot(ctx context.Context) (Set, error) {
	releases, err := l.client.ListReleases(ctx)
	if err != nil {
		return Set{}, fmt.Errorf("list releases: %w", err)
	}

	published := NewSet()

	for _, release := range releases {
		for _, asset := range release.Assets {
			if !strings.HasSuffix(asset.Name, l.extension) {
				continue
			}

			identity, err := pybi.Parse(asset.Name)
			if err != nil {
				return Set{}, fmt.Errorf("release %s asset %s: %w", release.TagName, asset.Name, err)
			}

			published.Add(identity)
		}
	}

	logger.DebugKV(ctx, "Release snapshot", "repository", l.client.Repository(),
		"releases", len(releases), "count", published.Len())

	return published, nil
}

// Publish uploads the staged artifact to the release tagged v<version>, creating it when missing.
func (l *ReleaseLedger) Publish(ctx context.Context, identity pybi.Identity, stagedPath string) error {
	if !l.client.Authenticated() {
		return fmt.Errorf("%w: %s: %w", ErrPublication, identity, errMissingToken)
	}

	release, err := l.release(ctx, identity.ReleaseTag())
	if err != nil {
		return fmt.Errorf("%w: resolve release %s: %w", ErrPublication, identity.ReleaseTag(), err)
	}

	file, err := os.Open(filepath.Clean(stagedPath))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublication, err)
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublication, err)
	}

	name := identity.Filename(l.extension)

	asset, err := l.client.UploadReleaseAsset(ctx, release.UploadURL, name, assetContentType, file, info.Size())
	if err != nil {
		return fmt.Errorf("%w: upload %s: %w", ErrPublication, name, err)
	}

	logger.DebugKV(ctx, "Asset uploaded", "release", release.TagName, "asset", asset.Name, "size", asset.Size)

	return nil
}

// release resolves tag through the memo, then the API, creating the release on a miss.
func (l *ReleaseLedger) release(ctx context.Context, tag string) (*github.Release, error) {
	if cached, ok := l.releases.Get(tag); ok {
		if release, ok := cached.(*github.Release); ok {
			return release, nil
		}
	}

	release, err := l.client.GetReleaseByTag(ctx, tag)
	if errors.Is(err, github.ErrNotFound) {
		logger.InfoKV(ctx, "Creating release", "tag", tag)

		release, err = l.client.CreateRelease(ctx, tag)
		if errors.Is(err, github.ErrAlreadyExists) {
			// Another writer created the tag between the lookup and the create.
			release, err = l.client.GetReleaseByTag(ctx, tag)
		}
	}

	if err != nil {
		return nil, err
	}

	l.releases.Set(tag, release, gocache.NoExpiration)

	return release, nil
}
