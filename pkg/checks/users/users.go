// Package users enumerates account names through author archives, the REST
// API and author links on the homepage.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/internal/wp"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/jsonutil"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/regexcache"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// Name is the phase name.
const Name = "users"

// Enumeration methods.
const (
	MethodIDORRedirect = "author_idor_redirect"
	MethodIDORHTML     = "author_idor_html"
	MethodREST         = "rest_api"
	MethodPostAuthor   = "post_author"
)

// RiskyNames are default or guessable account names.
var RiskyNames = []string{"admin", "administrator", "root", "test", "demo"}

const maxNameLen = 50

// User is one enumerated account.
type User struct {
	ID       int
	Username string
	Method   string
	URL      string
}

// Risky reports whether the username is one attackers try first.
func (u User) Risky() bool {
	return slices.Contains(RiskyNames, strings.ToLower(u.Username))
}

// Check implements check.Check.
type Check struct{}

// New returns the user enumeration check.
func New() *Check { return &Check{} }

// Name implements check.Check.
func (*Check) Name() string { return Name }

// Scan implements check.Check.
func (c *Check) Scan(ctx context.Context, target check.Target, env *check.Env) ([]finding.Finding, error) {
	var all []User
	if env.Settings.CheckAuthorIDOR {
		all = append(all, AuthorIDOR(ctx, target, env, env.Settings.MaxUsers)...)
	}
	if env.Settings.CheckRESTAPI {
		all = append(all, RESTAPI(ctx, target, env)...)
	}
	all = append(all, PostAuthors(ctx, target, env)...)
	return Findings(target, Unique(all)), nil
}

// AuthorIDOR requests /?author=1..max. Older releases redirect to
// /author/<name>/, newer ones render the archive in place.
func AuthorIDOR(ctx context.Context, target check.Target, env *check.Env, max int) []User {
	if max <= 0 {
		return nil
	}
	ids := make([]int, max)
	for i := range ids {
		ids[i] = i + 1
	}
	env.Log().InfoContext(ctx, "checking author enumeration", slog.Int("max_users", max))

	results := workerpool.Map(ctx, env.Pool, ids, func(ctx context.Context, id int) *User {
		reqURL := target.Join("?author=" + strconv.Itoa(id))
		resp, ok := wp.Get(ctx, env, reqURL, probe.FollowRedirects())
		if !ok {
			return nil
		}
		u := &User{ID: id, URL: resp.URL}
		switch {
		case strings.Contains(resp.URL, "/author/") && resp.URL != reqURL:
			u.Username, u.Method = NameFromURL(resp.URL), MethodIDORRedirect
		case resp.StatusCode == http.StatusOK:
			u.Username, u.Method = NameFromHTML(resp.Body), MethodIDORHTML
		}
		if u.Username == "" {
			return nil
		}
		return u
	})
	return compact(results)
}

type restUser struct {
	ID   int    `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// RESTAPI lists /wp-json/wp/v2/users, which is public unless a plugin or
// filter restricts it.
func RESTAPI(ctx context.Context, target check.Target, env *check.Env) []User {
	restURL := target.Join("/wp-json/wp/v2/users")
	resp, ok := wp.Get(ctx, env, restURL)
	if !ok {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		env.Log().InfoContext(ctx, "REST user endpoint requires authentication")
		return nil
	default:
		return nil
	}

	var list []restUser
	if err := jsonutil.Unmarshal(resp.Body, &list); err != nil {
		env.Log().DebugContext(ctx, "REST user listing is not a JSON array", slog.String("error", err.Error()))
		return nil
	}
	var out []User
	for _, ru := range list {
		name := ru.Slug
		if name == "" {
			name = ru.Name
		}
		if name != "" {
			out = append(out, User{ID: ru.ID, Username: name, Method: MethodREST, URL: restURL})
		}
	}
	return out
}

// PostAuthors collects names from author links on the homepage.
func PostAuthors(ctx context.Context, target check.Target, env *check.Env) []User {
	resp, ok := wp.GetOK(ctx, env, target.Join(""))
	if !ok {
		return nil
	}
	var out []User
	links := wp.FindAll(wp.Parse(resp.Body), func(n *html.Node) bool {
		href, _ := wp.Attr(n, "href")
		return n.DataAtom == atom.A && strings.Contains(href, "/author/")
	})
	for _, a := range links {
		href, _ := wp.Attr(a, "href")
		name := NameFromURL(href)
		if name == "" || slices.ContainsFunc(out, func(u User) bool { return u.Username == name }) {
			continue
		}
		out = append(out, User{Username: name, Method: MethodPostAuthor, URL: href})
	}
	return out
}

// NameFromURL returns the path segment after /author/.
func NameFromURL(u string) string {
	name, _ := regexcache.Group(`/author/([^/?#]+)`, u)
	return name
}

// NameFromHTML reads the account name off a rendered author archive.
func NameFromHTML(body []byte) string {
	doc := wp.Parse(body)
	if doc == nil {
		return ""
	}

	for _, classes := range [][]string{{"wp-block-query-title"}, {"archive-title", "page-title"}} {
		h1 := wp.Find(doc, func(n *html.Node) bool {
			return n.DataAtom == atom.H1 && wp.HasClassContaining(n, classes...)
		})
		if h1 == nil {
			continue
		}
		if name, ok := regexcache.Group(`(?i)Author[:\s]+(\w+)`, wp.Text(h1)); ok {
			if l := strings.ToLower(name); l != "author" && l != "by" {
				return name
			}
		}
		if span := wp.Find(h1, wp.Tag(atom.Span)); span != nil {
			name := wp.Text(span)
			if name != "" && len(name) < maxNameLen && !strings.EqualFold(name, "author") {
				return name
			}
		}
	}

	if body := wp.Find(doc, wp.Tag(atom.Body)); body != nil {
		for _, c := range wp.Classes(body) {
			rest, ok := strings.CutPrefix(c, "author-")
			if ok && rest != "" && !isDigits(rest) {
				return rest
			}
		}
	}

	if content, ok := wp.MetaContent(doc, "author"); ok && content != "" && len(content) < maxNameLen {
		return content
	}
	fallbacks := []func(*html.Node) bool{
		func(n *html.Node) bool { return n.DataAtom == atom.Span && wp.HasClassContaining(n, "author", "vcard") },
		func(n *html.Node) bool {
			rel, _ := wp.Attr(n, "rel")
			return n.DataAtom == atom.A && rel == "author"
		},
	}
	for _, pred := range fallbacks {
		if el := wp.Find(doc, pred); el != nil {
			if name := wp.Text(el); name != "" && len(name) < maxNameLen {
				return name
			}
		}
	}
	return ""
}

func isDigits(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func compact(users []*User) []User {
	var out []User
	for _, u := range users {
		if u != nil {
			out = append(out, *u)
		}
	}
	return out
}

// Unique keeps the first sighting of each username.
func Unique(users []User) []User {
	var out []User
	for _, u := range users {
		if !slices.ContainsFunc(out, func(o User) bool { return o.Username == u.Username }) {
			out = append(out, u)
		}
	}
	return out
}

// Findings reports one WPS-040 per user and a WPS-041 summary, or a
// good-practice WPS-040 when nothing was enumerated.
func Findings(target check.Target, users []User) []finding.Finding {
	if len(users) == 0 {
		return []finding.Finding{{
			Code:           "WPS-040",
			Title:          "User enumeration prevented (Good practice)",
			Severity:       finding.Info,
			Confidence:     finding.ConfidenceMedium,
			Description:    "No users could be enumerated, indicating proper security measures.",
			Recommendation: "Continue blocking user enumeration and maintain strong authentication policies.",
		}}
	}

	out := make([]finding.Finding, 0, len(users)+1)
	var risky, names, methods []string
	for _, u := range users {
		sev, first := finding.Medium, "Consider changing predictable username"
		if u.Risky() {
			sev, first = finding.High, "URGENT: Change username (admin/administrator are prime targets)"
			risky = append(risky, u.Username)
		}
		names = append(names, u.Username)
		if !slices.Contains(methods, u.Method) {
			methods = append(methods, u.Method)
		}

		id := "N/A"
		if u.ID > 0 {
			id = strconv.Itoa(u.ID)
		}
		evidenceURL := u.URL
		if evidenceURL == "" {
			evidenceURL = target.URL
		}
		out = append(out, finding.Finding{
			Code:       "WPS-040",
			Title:      "User enumerated: " + u.Username,
			Severity:   sev,
			Confidence: finding.ConfidenceHigh,
			Description: fmt.Sprintf("Username '%s' discovered via %s. User enumeration allows attackers "+
				"to target brute force attacks.", u.Username, u.Method),
			Evidence: finding.URLEvidence(evidenceURL, fmt.Sprintf("Method: %s, ID: %s", u.Method, id)),
			Recommendation: "1. " + first + "\n" +
				"2. Disable author IDOR enumeration (security plugin)\n" +
				"3. Restrict REST API user endpoint\n" +
				"4. Implement brute force protection\n" +
				"5. Enable 2FA for all users\n" +
				"6. Use security plugins like Wordfence or iThemes Security",
			References: []string{wp.HardeningGuide, "https://owasp.org/www-community/attacks/Brute_force_attack"},
			Component:  "User: " + u.Username,
		})
	}

	sev, riskyList := finding.Medium, "none"
	if len(risky) > 0 {
		sev, riskyList = finding.High, strings.Join(risky, ", ")
	}
	shown := "Usernames: " + strings.Join(names[:min(len(names), 10)], ", ")
	if len(names) > 10 {
		shown += "..."
	}
	return append(out, finding.Finding{
		Code:       "WPS-041",
		Title:      fmt.Sprintf("%d user(s) enumerated", len(users)),
		Severity:   sev,
		Confidence: finding.ConfidenceHigh,
		Description: fmt.Sprintf("Successfully enumerated %d WordPress users. %d have risky/default usernames: %s.",
			len(users), len(risky), riskyList),
		Evidence: &finding.Evidence{
			Type:    finding.EvidenceOther,
			Value:   shown,
			Context: "Methods: " + strings.Join(methods, ", "),
		},
		Recommendation: "Implement user enumeration protection:\n" +
			"1. Use security plugins to block author IDOR\n" +
			"2. Disable REST API user endpoint: add_filter(\"rest_endpoints\", function($endpoints) " +
			"{ unset($endpoints[\"/wp/v2/users\"]); return $endpoints; });\n" +
			"3. Enable login attempt limiting\n" +
			"4. Change all default/obvious usernames\n" +
			"5. Enable 2FA site-wide\n" +
			"6. Monitor for brute force attempts",
		References: []string{
			"https://perishablepress.com/stop-user-enumeration-wordpress/",
			"https://wordpress.org/plugins/stop-user-enumeration/",
		},
	})
}
