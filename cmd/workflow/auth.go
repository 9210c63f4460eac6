package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	// AuthorizationHeader is the header key to get the authorization token
	AuthorizationHeader = "authorization"
	tokenPrefix         = "Bearer "
)

// BearerAuthenticate rejects the requests that do not carry the token (except on "/").
// An empty token disables the authentication.
func BearerAuthenticate(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "" && r.URL.Path != "/" {
			if err := authenticate(token, r.Header.Get(AuthorizationHeader)); err != nil {
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func authenticate(expected, header string) error {
	switch {
	case expected == "":
		return nil
	case header == "":
		return errors.New("token not found")
	case !strings.HasPrefix(header, tokenPrefix):
		return errors.New(`missing "` + tokenPrefix + `" prefix`)
	case strings.TrimPrefix(header, tokenPrefix) != expected:
		return errors.New("invalid token")
	}
	return nil
}
