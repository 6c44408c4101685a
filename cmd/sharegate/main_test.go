package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sharegate/sharegate/internal/share"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging_AllLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"DEBUG", logrus.InfoLevel}, // Case-sensitive, should default
		{"unknown", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		name := tt.input
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			setupLogging(tt.input)
			assert.Equal(t, tt.expected, logrus.GetLevel())
		})
	}
}

func TestSetupLogging_JSONFormatter(t *testing.T) {
	setupLogging("info")

	formatter, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	require.True(t, ok, "Formatter should be JSONFormatter")
	assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		input   string
		want    share.Permission
		wantErr bool
	}{
		{"view", share.PermissionView, false},
		{"download", share.PermissionDownload, false},
		{"view,download", share.PermissionView | share.PermissionDownload, false},
		{" Download , VIEW ", share.PermissionView | share.PermissionDownload, false},
		{"none", 0, false},
		{"", 0, false},
		{"edit", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parsePermissions(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", extension("report.PDF"))
	assert.Equal(t, "gz", extension("archive.tar.gz"))
	assert.Empty(t, extension("README"))
	assert.Empty(t, extension("trailing."))
}

func TestCobraCommand_Setup(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "sharegate", cmd.Use)
	assert.Contains(t, cmd.Version, version)

	for _, flag := range []string{"config", "data-dir", "listen", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}

	for _, path := range [][]string{
		{"serve"},
		{"share", "create"},
		{"share", "update", "quotas"},
		{"share", "qr"},
		{"access", "download"},
		{"catalog", "put"},
		{"token", "issue"},
		{"stats", "refresh"},
	} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

// cli runs commands against one data directory
type cli struct {
	t       *testing.T
	dataDir string
	config  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sharegate.yaml")
	content := `
auth:
  jwt_secret: cli-test-secret
storage:
  endpoint: http://127.0.0.1:9000
  bucket: documents
  access_key: test-access-key
  secret_key: test-secret-key
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return &cli{t: t, dataDir: filepath.Join(dir, "data"), config: configPath}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--data-dir", c.dataDir, "--config", c.config, "--log-level", "error"))

	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(v interface{}, args ...string) {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "sharegate %v", args)
	if v != nil {
		require.NoError(c.t, json.Unmarshal([]byte(out), v), out)
	}
}

// update runs a share update subcommand and decodes its reply into a fresh view
func (c *cli) update(args ...string) *share.ShareLinkView {
	c.t.Helper()
	var view share.ShareLinkView
	c.mustRun(&view, append([]string{"share", "update"}, args...)...)
	return &view
}

func TestCLI_ShareLifecycle(t *testing.T) {
	c := newCLI(t)

	c.mustRun(nil, "catalog", "put", "ver-1",
		"--document", "doc-1", "--key", "documents/doc-1/ver-1", "--name", "Q1 report.pdf",
		"--content-type", "application/pdf", "--size", "2048")

	var created share.ShareLinkView
	c.mustRun(&created, "share", "create",
		"--owner", "owner-1", "--version", "ver-1", "--max-views", "2", "--password", "s3cret")
	assert.GreaterOrEqual(t, len(created.Code), 7)
	assert.LessOrEqual(t, len(created.Code), 10)
	assert.Equal(t, "doc-1", created.DocumentID, "document id comes from the catalog")
	assert.Equal(t, "Q1 report.pdf", created.File.Name)
	assert.Equal(t, "pdf", created.File.Extension)
	assert.Equal(t, int64(2048), created.File.SizeBytes)
	assert.True(t, created.PasswordProtected)

	// Password pending: no quota details and nothing recorded
	var pending share.Interstitial
	c.mustRun(&pending, "access", "interstitial", created.Code)
	assert.True(t, pending.PasswordRequired)
	assert.False(t, pending.PasswordValid)
	assert.Nil(t, pending.ViewsUsed)

	_, err := c.run("access", "verify", created.Code, "--password", "wrong")
	assert.ErrorIs(t, err, share.ErrPasswordInvalid)

	var verified map[string]bool
	c.mustRun(&verified, "access", "verify", created.Code, "--password", "s3cret")
	assert.True(t, verified["valid"])

	var view share.Interstitial
	c.mustRun(&view, "access", "interstitial", created.Code, "--password", "s3cret")
	require.NotNil(t, view.ViewsUsed)
	assert.Equal(t, int64(1), *view.ViewsUsed)

	var link share.DownloadLink
	c.mustRun(&link, "access", "download", created.Code, "--password", "s3cret")
	assert.Contains(t, link.URL, "http://127.0.0.1:9000/documents/documents/doc-1/ver-1")
	assert.Contains(t, link.URL, "X-Amz-Expires=900")
	assert.Equal(t, "Q1 report.pdf", link.FileName)

	var stats map[string]interface{}
	c.mustRun(&stats, "share", "stats", created.ID)
	assert.EqualValues(t, 1, stats["views"])
	assert.EqualValues(t, 1, stats["downloads"])
	assert.EqualValues(t, 1, stats["password_failures"])

	var events struct {
		Total int `json:"total"`
	}
	c.mustRun(&events, "share", "events", created.ID)
	assert.Equal(t, 3, events.Total, "verify records nothing on success")

	var revoked share.ShareLinkView
	c.mustRun(&revoked, "share", "revoke", created.ID)
	assert.Equal(t, share.StatusRevoked, revoked.Status)

	_, err = c.run("access", "interstitial", created.Code, "--password", "s3cret")
	assert.ErrorIs(t, err, share.ErrShareRevoked)
}

func TestCLI_UserLinkWithToken(t *testing.T) {
	c := newCLI(t)

	var created share.ShareLinkView
	c.mustRun(&created, "share", "create",
		"--owner", "owner-1", "--document", "doc-1",
		"--subject-type", "group", "--subject-id", "finance", "--permissions", "view")

	_, err := c.run("access", "interstitial", created.Code)
	assert.ErrorIs(t, err, share.ErrShareNotAuthorized)

	var member, outsider struct {
		Token string `json:"token"`
	}
	c.mustRun(&member, "token", "issue", "alice", "--group", "finance")
	c.mustRun(&outsider, "token", "issue", "bob", "--group", "sales")

	var view share.Interstitial
	c.mustRun(&view, "access", "interstitial", created.Code, "--token", member.Token)
	assert.True(t, view.PasswordValid)
	assert.False(t, view.CanDownload)

	_, err = c.run("access", "interstitial", created.Code, "--token", outsider.Token)
	assert.ErrorIs(t, err, share.ErrShareNotAuthorized)

	_, err = c.run("access", "download", created.Code, "--token", member.Token)
	assert.ErrorIs(t, err, share.ErrDownloadNotAllowed)
}

func TestCLI_UpdateCommands(t *testing.T) {
	c := newCLI(t)

	var created share.ShareLinkView
	c.mustRun(&created, "share", "create", "--owner", "owner-1", "--document", "doc-1", "--file-name", "a.txt")

	updated := c.update("quotas", created.ID, "--max-downloads", "3")
	require.NotNil(t, updated.MaxDownloads)
	assert.Equal(t, int64(3), *updated.MaxDownloads)
	assert.Nil(t, updated.MaxViews)

	updated = c.update("ips", created.ID, "--allow-ip", "::ffff:10.0.0.1,10.1.0.0/16")
	assert.Equal(t, []string{"10.0.0.1", "10.1.0.0/16"}, updated.AllowedIPs)

	_, err := c.run("access", "interstitial", created.Code, "--ip", "192.168.1.1")
	assert.ErrorIs(t, err, share.ErrShareIPNotAllowed)

	c.mustRun(nil, "access", "interstitial", created.Code, "--ip", "10.1.2.3")

	_, err = c.run("share", "update", "validity", created.ID, "--to", "2000-01-01T00:00:00Z")
	assert.ErrorIs(t, err, share.ErrInvalidValidityWindow)

	updated = c.update("validity", created.ID,
		"--from", "1999-12-01T00:00:00Z", "--to", "2000-01-01T00:00:00Z")
	assert.Equal(t, share.StatusExpired, updated.Status)

	_, err = c.run("access", "interstitial", created.Code, "--ip", "10.1.2.3")
	assert.ErrorIs(t, err, share.ErrShareExpired)

	updated = c.update("validity", created.ID, "--clear-to")
	assert.Nil(t, updated.ValidTo)

	updated = c.update("file", created.ID, "--name", "b.txt")
	assert.Equal(t, "b.txt", updated.File.Name)
	assert.Equal(t, "txt", updated.File.Extension)

	updated = c.update("watermark", created.ID, "--watermark", "draft")
	assert.Equal(t, "draft", updated.Watermark)

	updated = c.update("permissions", created.ID, "--permissions", "view")
	assert.False(t, updated.CanDownload)

	updated = c.update("password", created.ID, "--password", "pw")
	assert.True(t, updated.PasswordProtected)
	updated = c.update("password", created.ID, "--remove")
	assert.False(t, updated.PasswordProtected)

	var listed []share.ShareLinkView
	c.mustRun(&listed, "share", "list", "--owner", "owner-1")
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestCLI_QRAndRefresh(t *testing.T) {
	c := newCLI(t)

	var created share.ShareLinkView
	c.mustRun(&created, "share", "create", "--owner", "owner-1", "--document", "doc-1")
	c.mustRun(nil, "access", "interstitial", created.Code)

	output := filepath.Join(t.TempDir(), "share.png")
	var qr map[string]string
	c.mustRun(&qr, "share", "qr", created.Code, "--output", output)
	assert.Equal(t, "http://localhost:8090/s/"+created.Code, qr["url"])

	png, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	var refreshed map[string]int
	c.mustRun(&refreshed, "stats", "refresh")
	assert.Equal(t, 1, refreshed["refreshed"])

	var stats map[string]interface{}
	c.mustRun(&stats, "share", "stats", created.ID)
	assert.EqualValues(t, 1, stats["views"])
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("share", "get", "missing")
	assert.ErrorIs(t, err, share.ErrShareNotFound)

	_, err = c.run("share", "create", "--permissions", "edit")
	assert.Error(t, err)

	_, err = c.run("share", "create", "--subject-type", "user")
	assert.ErrorIs(t, err, share.ErrInvalidSubject)

	_, err = c.run("share", "list")
	assert.Error(t, err)

	_, err = c.run("access", "interstitial", "nope", "--token", "garbage")
	assert.Error(t, err)
}

func TestServe_InvalidSchedule(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sharegate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("stats:\n  refresh_schedule: every now and then\n"), 0644))

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--data-dir", filepath.Join(dir, "data"), "--config", configPath,
		"--listen", "127.0.0.1:0", "--log-level", "error"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh schedule")
}
