package boleta

import (
	"context"
	"sync"
	"time"
)

// TokenCache cachea el bearer token de la API de Ventas durante la mitad de
// su vida útil reportada, para amortizar la autenticación en corridas batch.
// Seguro para uso concurrente.
type TokenCache struct {
	api VentasAPI
	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenCache construye el cache sobre el cliente de Ventas.
func NewTokenCache(api VentasAPI) *TokenCache {
	return &TokenCache{api: api, now: time.Now}
}

// Token devuelve el token vigente, autenticando solo si el cacheado expiró.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	auth, err := c.api.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = auth.AccessToken
	c.expiresAt = c.now().Add(time.Duration(auth.ExpiresIn) * time.Second / 2)
	return c.token, nil
}

// Invalidate descarta el token cacheado; la próxima llamada re-autentica.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
