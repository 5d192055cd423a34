package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/pybi-publisher/internal/api/github"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

func mustIdentity(t *testing.T, name string) pybi.Identity {
	t.Helper()

	identity, err := pybi.Parse(name)
	require.NoError(t, err)

	return identity
}

func stage(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "staged.pybi")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// TestSet checks structural membership.
func TestSet(t *testing.T) {
	t.Parallel()

	set := NewSet(mustIdentity(t, "cpython-3.9.2-win32.pybi"))
	require.True(t, set.Contains(mustIdentity(t, "cpython-3.9.2-win32.zip")))
	require.False(t, set.Contains(mustIdentity(t, "cpython-3.9.2-win_amd64.pybi")))

	var empty Set

	require.False(t, empty.Contains(mustIdentity(t, "cpython-3.9.2-win32.pybi")))
	empty.Add(mustIdentity(t, "cpython-3.9.2-win32.pybi"))
	require.Equal(t, 1, empty.Len())
}

// TestDirectoryLedger_Snapshot ignores dotfiles and foreign files.
func TestDirectoryLedger_Snapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string]string{
		"cpython-3.9.2-win32.pybi":                   "zip",
		"cpython-3.10.1-manylinux_2_17_x86_64.pybi":  "zip",
		".cpython-3.8.10-win32.pybi.staging":         "",
		".cpython-3.8.10-win32.pybi.old":             "zip",
		"cpython-3.8.10-macosx_11_0_universal2.pybi": "",
		"README.md": "docs",
	}

	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600))
	}

	snapshot, err := NewDirectoryLedger(dir, "").Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, snapshot.Len())
	require.True(t, snapshot.Contains(mustIdentity(t, "cpython-3.10.1-manylinux_2_17_x86_64.pybi")))
	require.True(t, snapshot.Contains(mustIdentity(t, "cpython-3.8.10-macosx_11_0_universal2.pybi")))
	require.False(t, snapshot.Contains(mustIdentity(t, "cpython-3.8.10-win32.pybi")))

	missing, err := NewDirectoryLedger(filepath.Join(dir, "missing"), "").Snapshot(context.Background())
	require.NoError(t, err)
	require.Zero(t, missing.Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pybi"), []byte("zip"), 0o600))
	_, err = NewDirectoryLedger(dir, "").Snapshot(context.Background())
	require.ErrorIs(t, err, pybi.ErrMalformedName)
}

// TestDirectoryLedger_Publish writes the artifact under its identity name and shows it in the next snapshot.
func TestDirectoryLedger_Publish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	ledger := NewDirectoryLedger(dir, "")
	identity := mustIdentity(t, "cpython_unofficial-3.9.2-win32.pybi")

	require.NoError(t, ledger.Publish(ctx, identity, stage(t, "artifact")))

	contents, err := os.ReadFile(filepath.Join(dir, "cpython_unofficial-3.9.2-win32.pybi"))
	require.NoError(t, err)
	require.Equal(t, "artifact", string(contents))

	// Republishing replaces the file in place.
	require.NoError(t, ledger.Publish(ctx, identity, stage(t, "rebuilt")))

	contents, err = os.ReadFile(filepath.Join(dir, "cpython_unofficial-3.9.2-win32.pybi"))
	require.NoError(t, err)
	require.Equal(t, "rebuilt", string(contents))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	snapshot, err := ledger.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, snapshot.Contains(identity))

	err = ledger.Publish(ctx, mustIdentity(t, "cpython-3.9.2-linux.pybi"), filepath.Join(dir, "missing.pybi"))
	require.ErrorIs(t, err, ErrPublication)
	require.NoFileExists(t, filepath.Join(dir, "cpython-3.9.2-linux.pybi"))
}

// TestDirectoryLedger_PublishApplyFailure never exposes the final name when the verified copy fails.
func TestDirectoryLedger_PublishApplyFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ledger := NewDirectoryLedger(dir, "")
	identity := mustIdentity(t, "cpython_unofficial-3.9.2-win32.pybi")

	var appliedTo string

	ledger.apply = func(_ io.Reader, opts goupdate.Options) error {
		appliedTo = opts.TargetPath

		require.NoFileExists(t, filepath.Join(dir, "cpython_unofficial-3.9.2-win32.pybi"))

		return errors.New("checksum mismatch")
	}

	err := ledger.Publish(context.Background(), identity, stage(t, "artifact"))
	require.ErrorIs(t, err, ErrPublication)
	require.Equal(t, filepath.Join(dir, ".cpython_unofficial-3.9.2-win32.pybi.staging"), appliedTo)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	snapshot, err := ledger.Snapshot(context.Background())
	require.NoError(t, err)
	require.Zero(t, snapshot.Len())
}

// fakeReleases is an in-memory releases API.
type fakeReleases struct {
	mu       sync.Mutex
	releases map[string]*github.Release
	creates  int
	uploads  []string
	reject   bool
	// racing makes the next create fail as if another writer created the tag first.
	racing bool
}

// withUploadURL points the release's upload template back at the serving host.
func withUploadURL(r *http.Request, release *github.Release) *github.Release {
	copied := *release
	copied.UploadURL = fmt.Sprintf("http://%s/upload/%s/assets{?name,label}", r.Host, release.TagName)

	return &copied
}

func (f *fakeReleases) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/repos/o/r/releases":
		list := make([]*github.Release, 0, len(f.releases))
		for _, release := range f.releases {
			list = append(list, release)
		}

		_ = json.NewEncoder(w).Encode(list)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/repos/o/r/releases/tags/"):
		release, ok := f.releases[strings.TrimPrefix(r.URL.Path, "/repos/o/r/releases/tags/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message": "Not Found"}`)

			return
		}

		_ = json.NewEncoder(w).Encode(withUploadURL(r, release))
	case r.Method == http.MethodPost && r.URL.Path == "/repos/o/r/releases":
		var body github.CreateReleaseRequest
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.creates++
		release := &github.Release{ID: int64(f.creates), TagName: body.TagName}
		f.releases[body.TagName] = release

		if f.racing {
			f.racing = false

			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message": "Validation Failed", "errors": [{"resource": "Release", "code": "already_exists", "field": "tag_name"}]}`)

			return
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(withUploadURL(r, release))
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/"):
		if f.reject {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"message": "Resource not accessible"}`)

			return
		}

		name := r.URL.Query().Get("name")
		f.uploads = append(f.uploads, strings.Split(r.URL.Path, "/")[2]+"/"+name)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(github.Asset{Name: name})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newReleaseLedger(t *testing.T, fake *fakeReleases, token string) *ReleaseLedger {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := github.NewClient(github.Config{
		BaseURL:    server.URL,
		Repository: "o/r",
		Token:      token,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	return NewReleaseLedger(client, "")
}

// TestReleaseLedger_Snapshot collects artifact assets across releases.
func TestReleaseLedger_Snapshot(t *testing.T) {
	t.Parallel()

	fake := &fakeReleases{releases: map[string]*github.Release{
		"v3.9.2": {TagName: "v3.9.2", Assets: []github.Asset{
			{Name: "cpython-3.9.2-win32.pybi"},
			{Name: "SHA256SUMS"},
		}},
		"v3.10.1": {TagName: "v3.10.1", Assets: []github.Asset{{Name: "cpython-3.10.1-win32.pybi"}}},
	}}

	snapshot, err := newReleaseLedger(t, fake, "").Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snapshot.Len())
	require.True(t, snapshot.Contains(mustIdentity(t, "cpython-3.10.1-win32.pybi")))
}

// TestReleaseLedger_Publish resolves each release once and creates missing ones.
func TestReleaseLedger_Publish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeReleases{releases: map[string]*github.Release{"v3.9.2": {TagName: "v3.9.2"}}}
	ledger := newReleaseLedger(t, fake, "token")

	for _, name := range []string{
		"cpython-3.9.2-win32.pybi",
		"cpython-3.10.1-win32.pybi",
		"cpython-3.10.1-win_amd64.pybi",
	} {
		require.NoError(t, ledger.Publish(ctx, mustIdentity(t, name), stage(t, "zip")))
	}

	require.Equal(t, 1, fake.creates)
	require.Equal(t, []string{
		"v3.9.2/cpython-3.9.2-win32.pybi",
		"v3.10.1/cpython-3.10.1-win32.pybi",
		"v3.10.1/cpython-3.10.1-win_amd64.pybi",
	}, fake.uploads)
}

// TestReleaseLedger_PublishFailures covers a missing token and a rejected upload.
func TestReleaseLedger_PublishFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identity := mustIdentity(t, "cpython-3.9.2-win32.pybi")

	fake := &fakeReleases{releases: map[string]*github.Release{}}
	err := newReleaseLedger(t, fake, "").Publish(ctx, identity, stage(t, "zip"))
	require.ErrorIs(t, err, ErrPublication)
	require.ErrorIs(t, err, errMissingToken)
	require.Zero(t, fake.creates)

	rejecting := &fakeReleases{releases: map[string]*github.Release{}, reject: true}
	err = newReleaseLedger(t, rejecting, "token").Publish(ctx, identity, stage(t, "zip"))
	require.ErrorIs(t, err, ErrPublication)

	var apiError *github.APIError
	require.ErrorAs(t, err, &apiError)
	require.Equal(t, http.StatusForbidden, apiError.StatusCode)
}

// TestReleaseLedger_PublishCreateRace reuses a release created concurrently by another writer.
func TestReleaseLedger_PublishCreateRace(t *testing.T) {
	t.Parallel()

	fake := &fakeReleases{releases: map[string]*github.Release{}, racing: true}

	err := newReleaseLedger(t, fake, "token").Publish(context.Background(),
		mustIdentity(t, "cpython-3.9.2-win32.pybi"), stage(t, "zip"))
	require.NoError(t, err)
	require.Equal(t, []string{"v3.9.2/cpython-3.9.2-win32.pybi"}, fake.uploads)
}
