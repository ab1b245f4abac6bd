// Package urltemplate expands a widget's registered URL template against
// the room/user context of the widget instance being provisioned (spec
// §6.5). It is a collaborator of the state machine, not part of the
// reducer: template expansion happens once, when a widget is added to a
// room, and the expanded URL is what the client loads into the widget's
// iframe.
package urltemplate

import (
	"net/url"
	"sort"
	"strings"
)

// Context holds the values a widget URL template may reference. Any zero
// field is substituted as the empty string.
type Context struct {
	UserID           string
	RoomID           string
	WidgetID         string
	AvatarURL        string
	DisplayName      string
	ClientLanguage   string
	ClientTheme      string
	ClientID         string
	DeviceID         string
	MatrixBaseURL    string
	ElementFontScale string
	ElementFont      string
}

// variables maps a template placeholder to the Context field it draws
// from. Some keys are prefixes of others ("$io.element.font" of
// "$io.element.fontScale"), so Expand hands them to strings.NewReplacer
// longest first.
func variables(c Context) map[string]string {
	return map[string]string{
		"$matrix_user_id":                     c.UserID,
		"$matrix_room_id":                      c.RoomID,
		"$matrix_widget_id":                    c.WidgetID,
		"$matrix_avatar_url":                   c.AvatarURL,
		"$matrix_display_name":                 c.DisplayName,
		"$org.matrix.msc2873.client_language":  c.ClientLanguage,
		"$org.matrix.msc2873.client_theme":     c.ClientTheme,
		"$org.matrix.msc2873.client_id":        c.ClientID,
		"$org.matrix.msc2873.matrix_device_id": c.DeviceID,
		"$org.matrix.msc4039.matrix_base_url":  c.MatrixBaseURL,
		"$io.element.fontScale":                c.ElementFontScale,
		"$io.element.font":                     c.ElementFont,
	}
}

// Expand substitutes every recognized template variable in tmpl with its
// URL-component-encoded value from c. Unrecognized `$`-prefixed tokens are
// left untouched.
func Expand(tmpl string, c Context) string {
	vars := variables(c)
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	pairs := make([]string, 0, len(vars)*2)
	for _, k := range keys {
		pairs = append(pairs, k, url.QueryEscape(vars[k]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ElementCallURL builds the widget URL for an Element Call widget instance,
// expanding the base template and layering on the query parameters Element
// Call itself expects (parentUrl, so the call can postMessage its parent
// back), grounded on the same Context used for generic widget expansion.
func ElementCallURL(tmpl string, c Context, parentURL string) (string, error) {
	expanded := Expand(tmpl, c)
	u, err := url.Parse(expanded)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if parentURL != "" {
		q.Set("parentUrl", parentURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
