package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"
)

// jwksKeyfunc fetches the key set at url and refreshes it every refresh
// until ctx is done.
func jwksKeyfunc(ctx context.Context, url string, refresh time.Duration) (jwt.Keyfunc, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	set, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	var mu sync.RWMutex
	if refresh > 0 {
		go func() {
			ticker := time.NewTicker(refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					next, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(httpClient))
					if err != nil {
						log.Warn().Err(err).Str("jwks_url", url).Msg("refresh jwks")
						continue
					}
					mu.Lock()
					set = next
					mu.Unlock()
				}
			}
		}()
	}
	return func(t *jwt.Token) (interface{}, error) {
		mu.RLock()
		cur := set
		mu.RUnlock()
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			if key, ok := cur.LookupKeyID(kid); ok {
				var pub any
				if err := key.Raw(&pub); err != nil {
					return nil, err
				}
				return pub, nil
			}
			return nil, fmt.Errorf("no jwk for kid: %s", kid)
		}
		// tokens without kid use the first key
		if cur.Len() > 0 {
			if key, ok := cur.Key(0); ok {
				var pub any
				if err := key.Raw(&pub); err != nil {
					return nil, err
				}
				return pub, nil
			}
		}
		return nil, fmt.Errorf("empty jwk set")
	}, nil
}
