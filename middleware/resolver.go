package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// RemoteAddrResolver identifies clients by the connection's remote address.
func RemoteAddrResolver(c *fiber.Ctx) string {
	return c.IP()
}

// ForwardedForResolver identifies clients by the first X-Forwarded-For entry,
// falling back to the remote address when the header is absent or empty.
// Only use it behind a proxy that sets the header, since clients can forge it.
// The result is copied out of the request buffer because strategies keep it
// as a map key.
func ForwardedForResolver(c *fiber.Ctx) string {
	forwarded := c.Get(fiber.HeaderXForwardedFor)
	if forwarded == "" {
		return c.IP()
	}

	first, _, _ := strings.Cut(forwarded, ",")
	if first = strings.TrimSpace(first); first != "" {
		return utils.CopyString(first)
	}
	return c.IP()
}

// NewClientIdResolver picks ForwardedForResolver or RemoteAddrResolver.
func NewClientIdResolver(trustForwardedFor bool) func(*fiber.Ctx) string {
	if trustForwardedFor {
		return ForwardedForResolver
	}
	return RemoteAddrResolver
}
