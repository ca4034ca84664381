package users

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/checktest"
	"github.com/waftester/wpscout/pkg/finding"
)

func site() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("author") {
		case "":
			_, _ = w.Write([]byte(`<a href="/author/admin/">Admin</a> <a href="/author/writer">W</a> <a href="/about">x</a>`))
		case "1":
			http.Redirect(w, r, "/author/admin/", http.StatusMovedPermanently)
		case "2":
			_, _ = w.Write([]byte(`<h1 class="wp-block-query-title">Author: <span>editor</span></h1>`))
		case "3":
			_, _ = w.Write([]byte(`<html><body class="archive author author-jdoe author-3"></body></html>`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/author/admin/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("archive"))
	})
	mux.HandleFunc("/wp-json/wp/v2/users", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"slug":"admin","name":"Admin"},{"id":5,"name":"Guest"},{"id":6}]`))
	})
	return mux
}

func TestScan_AllMethods(t *testing.T) {
	_, target := checktest.Server(t, site())
	settings := checktest.Settings()
	settings.MaxUsers = 4

	findings, err := New().Scan(context.Background(), target, checktest.Env(t, settings))
	require.NoError(t, err)

	users := checktest.ByCode(findings, "WPS-040")
	var names []string
	for _, f := range users {
		names = append(names, f.Component)
	}
	assert.Equal(t, []string{"User: admin", "User: editor", "User: jdoe", "User: Guest", "User: writer"}, names)

	admin := users[0]
	assert.Equal(t, finding.High, admin.Severity)
	assert.Equal(t, target.Join("/author/admin/"), admin.Evidence.Value)
	assert.Equal(t, "Method: author_idor_redirect, ID: 1", admin.Evidence.Context)
	assert.Equal(t, finding.Medium, users[1].Severity)
	assert.Equal(t, "Method: author_idor_html, ID: 2", users[1].Evidence.Context)
	assert.Equal(t, "Method: rest_api, ID: 5", users[3].Evidence.Context)
	assert.Equal(t, "Method: post_author, ID: N/A", users[4].Evidence.Context)

	summary := checktest.ByCode(findings, "WPS-041")
	require.Len(t, summary, 1)
	assert.Equal(t, "5 user(s) enumerated", summary[0].Title)
	assert.Equal(t, finding.High, summary[0].Severity)
	assert.Equal(t, "Usernames: admin, editor, jdoe, Guest, writer", summary[0].Evidence.Value)
	assert.Equal(t, "Methods: author_idor_redirect, author_idor_html, rest_api, post_author", summary[0].Evidence.Context)
	assert.Contains(t, summary[0].Description, "1 have risky/default usernames: admin.")
}

func TestScan_MethodsDisabled(t *testing.T) {
	_, target := checktest.Server(t, site())
	settings := checktest.Settings()
	settings.CheckAuthorIDOR = false
	settings.CheckRESTAPI = false

	findings, err := New().Scan(context.Background(), target, checktest.Env(t, settings))
	require.NoError(t, err)

	assert.Equal(t, []string{"WPS-040", "WPS-040", "WPS-041"}, checktest.Codes(findings))
	assert.Equal(t, finding.High, findings[2].Severity)
}

func TestScan_Prevented(t *testing.T) {
	_, target := checktest.Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wp-json/wp/v2/users" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.NotFound(w, r)
	}))

	findings, err := New().Scan(context.Background(), target, checktest.Env(t, checktest.Settings()))
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "User enumeration prevented (Good practice)", findings[0].Title)
	assert.Equal(t, finding.ConfidenceMedium, findings[0].Confidence)
}

func TestRESTAPI_InvalidJSON(t *testing.T) {
	_, target := checktest.Server(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"rest_no_route"}`))
	}))
	assert.Empty(t, RESTAPI(context.Background(), target, checktest.Env(t, checktest.Settings())))
}

func TestNameFromHTML(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"archive title regex", `<h1 class="page-title">Author: bob</h1>`, "bob"},
		{"h1 span", `<h1 class="archive-title">Posts by <span>carol</span></h1>`, "carol"},
		{"skip author word", `<h1 class="page-title">Author: author</h1><a rel="author">dave</a>`, "dave"},
		{"body class ignores id", `<body class="author author-7">`, ""},
		{"meta author", `<head><meta name="author" content="erin"></head>`, "erin"},
		{"vcard span", `<span class="byline vcard-name">frank</span>`, "frank"},
		{"rel author", `<a rel="author" href="#">grace</a>`, "grace"},
		{"too long", `<a rel="author">this-name-is-far-too-long-to-be-a-plausible-wordpress-login</a>`, ""},
		{"nothing", `<p>hello</p>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NameFromHTML([]byte(tt.html)))
		})
	}
}

func TestNameFromURL(t *testing.T) {
	assert.Equal(t, "admin", NameFromURL("https://example.com/author/admin/"))
	assert.Equal(t, "admin", NameFromURL("/author/admin?x=1"))
	assert.Empty(t, NameFromURL("https://example.com/about/"))
}

func TestFindings_TruncatesUsernameList(t *testing.T) {
	var users []User
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
		users = append(users, User{Username: n, Method: MethodREST})
	}
	target, err := check.NewTarget("https://example.com")
	require.NoError(t, err)

	findings := Findings(target, users)
	summary := findings[len(findings)-1]
	assert.Equal(t, "Usernames: a, b, c, d, e, f, g, h, i, j...", summary.Evidence.Value)
	assert.Equal(t, finding.Medium, summary.Severity)
	assert.Equal(t, "https://example.com", findings[0].Evidence.Value)
}
