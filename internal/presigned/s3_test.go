package presigned

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, clk clock.Clock) *S3Issuer {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	issuer, err := NewS3Issuer(config.StorageConfig{
		Endpoint:     "http://localhost:9000",
		Region:       "us-east-1",
		Bucket:       "documents",
		AccessKey:    "AKIAEXAMPLE",
		SecretKey:    "secret",
		UsePathStyle: true,
	}, clk, logger)
	require.NoError(t, err)
	return issuer
}

func TestNewS3Issuer_RequiresBucket(t *testing.T) {
	_, err := NewS3Issuer(config.StorageConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrBucketRequired)
}

func TestGetDownloadLink(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, clock.Fake(now))

	link, err := issuer.GetDownloadLink(context.Background(), "docs/v1/report.pdf", 15*time.Minute, "report.pdf")
	require.NoError(t, err)

	assert.Equal(t, "GET", link.Method)
	assert.Equal(t, now.Add(15*time.Minute), link.ExpiresAt)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/documents/docs/v1/report.pdf", u.Path, "path-style addressing")

	q := u.Query()
	assert.Equal(t, "900", q.Get("X-Amz-Expires"))
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.True(t, strings.HasPrefix(q.Get("X-Amz-Credential"), "AKIAEXAMPLE/"))
	assert.Equal(t, `attachment; filename=report.pdf`, q.Get("response-content-disposition"))
}

func TestGetDownloadLink_NoFileName(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	link, err := issuer.GetDownloadLink(context.Background(), "k", time.Minute, "")
	require.NoError(t, err)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("response-content-disposition"))
}

func TestGetDownloadLink_Validation(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	ctx := context.Background()

	_, err := issuer.GetDownloadLink(ctx, "", time.Minute, "")
	assert.ErrorIs(t, err, ErrStorageKeyRequired)

	_, err = issuer.GetDownloadLink(ctx, "k", 0, "")
	assert.ErrorIs(t, err, ErrInvalidExpiration)

	_, err = issuer.GetDownloadLink(ctx, "k", MaxExpiration+time.Second, "")
	assert.ErrorIs(t, err, ErrInvalidExpiration)
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{name: "plain", fileName: "a.txt", want: "attachment; filename=a.txt"},
		{name: "spaces are quoted", fileName: "annual report.pdf", want: `attachment; filename="annual report.pdf"`},
		{name: "non-ascii", fileName: "résumé.pdf", want: "attachment; filename*=utf-8''r%C3%A9sum%C3%A9.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentDisposition(tt.fileName))
		})
	}
}
