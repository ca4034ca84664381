package files

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/checks/checktest"
	"github.com/waftester/wpscout/pkg/finding"
)

func siteWith(files map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.git/HEAD" {
			http.Redirect(w, r, "/moved", http.StatusFound)
			return
		}
		if r.URL.Path == "/moved" {
			_, _ = w.Write([]byte("ref: refs/heads/main"))
			return
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	})
}

func TestScan_ExposedFiles(t *testing.T) {
	_, target := checktest.Server(t, siteWith(map[string]string{
		"/wp-config.php.bak": "<?php define('DB_NAME', 'wp');",
		"/.env":              "APP_KEY=secret\nDB=1\n",
		"/backup.sql":        "<html>Not found</html>",
		"/license.txt":       "<html><body>soft 404</body></html>",
		"/wp-config.php":     "",
	}))

	findings, err := New().Scan(context.Background(), target, checktest.Env(t, checktest.Settings()))
	require.NoError(t, err)

	assert.Equal(t, []string{"WPS-030", "WPS-030", "WPS-031"}, checktest.Codes(findings))
	assert.Equal(t, ".env", findings[0].Component)
	assert.Equal(t, "Environment file (.env) exposed", findings[0].Title)
	assert.Equal(t, "wp-config.php.bak", findings[1].Component)
	assert.Equal(t, finding.Critical, findings[1].Severity)
	assert.Equal(t, target.Join("wp-config.php.bak"), findings[1].Evidence.Value)
	assert.Equal(t, "HTTP 200, Size: 30 bytes", findings[1].Evidence.Context)

	summary := findings[2]
	assert.Equal(t, "2 sensitive file(s) exposed", summary.Title)
	assert.Equal(t, finding.Critical, summary.Severity)
}

func TestScan_NothingExposed(t *testing.T) {
	_, target := checktest.Server(t, siteWith(nil))

	findings, err := New().Scan(context.Background(), target, checktest.Env(t, checktest.Settings()))
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "No sensitive files exposed (Good practice)", findings[0].Title)
	assert.Equal(t, finding.Info, findings[0].Severity)
}

func TestScan_HighOnlySummary(t *testing.T) {
	_, target := checktest.Server(t, siteWith(map[string]string{
		"/readme.html": "<h1>WordPress</h1> Version 6.4",
	}))

	findings, err := New().Scan(context.Background(), target, checktest.Env(t, checktest.Settings()))
	require.NoError(t, err)

	require.Len(t, findings, 2)
	assert.Equal(t, "WordPress readme.html accessible", findings[0].Title)
	assert.Equal(t, finding.High, findings[1].Severity)
}

func TestPaths(t *testing.T) {
	paths := Paths([]string{"/backup.sql", " /custom/ ", "https://wp-config.php.bak", ""})

	assert.Contains(t, paths, "custom")
	assert.Contains(t, paths, "wp-config.php.bak")
	assert.Len(t, paths, len(BackupPatterns)+1)
	assert.IsIncreasing(t, paths)
}

func TestSeverity(t *testing.T) {
	tests := map[string]finding.Severity{
		"/wp-config.php":        finding.Critical,
		"wp-config.old":         finding.Critical,
		"site.sql":              finding.Critical,
		".git/config":           finding.High,
		"/wp-content/debug.log": finding.High,
		"license.txt":           finding.Medium,
		"wp-content.zip":        finding.Low,
		"backup.tar.gz":         finding.Medium,
		"backup.zip":            finding.Low,
		".htaccess.old":         finding.Medium,
		".htaccess~":            finding.Low,
	}
	for path, want := range tests {
		assert.Equal(t, want, Severity(path), path)
	}
}

func TestValidContent(t *testing.T) {
	assert.True(t, ValidContent("wp-config.php", "define('DB_HOST', 'localhost');"))
	assert.False(t, ValidContent("wp-config.php", "<?php // nothing"))
	assert.False(t, ValidContent(".env", "no newline=here"))
	assert.True(t, ValidContent("dump.sql", "insert into wp_users values (1)"))
	assert.False(t, ValidContent("readme.html", "<html>Drupal</html>"))
	assert.True(t, ValidContent(".git/HEAD", "ref: refs/heads/main"))
	assert.True(t, ValidContent("wp-content/debug.log", "[01-Jan-2024] PHP Warning"))
	assert.True(t, ValidContent("backup.zip", "PK\x03\x04"))
	assert.False(t, ValidContent("backup.zip", "<!doctype html><HTML>"))
}
