package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessTokenFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "bearer", header: "Bearer abc", cookie: "from-cookie", want: "abc"},
		{name: "scheme is case insensitive", header: "bearer  abc ", want: "abc"},
		{name: "cookie only", cookie: "from-cookie", want: "from-cookie"},
		{name: "empty bearer falls back", header: "Bearer ", cookie: "from-cookie", want: "from-cookie"},
		{name: "bare scheme falls back", header: "Bearer", cookie: "from-cookie", want: "from-cookie"},
		{name: "other scheme falls back", header: "Basic dXNlcjpwYXNz", cookie: "from-cookie", want: "from-cookie"},
		{name: "nothing", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tc.cookie})
			}
			assert.Equal(t, tc.want, AccessTokenFromRequest(req))
		})
	}
}
