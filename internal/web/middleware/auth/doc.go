// Package auth guards routes behind the session cookie.
//
// RequireSession verifies the signed session cookie, runs it through the
// session callbacks and stores the resulting session in fiber.Locals.
// RequireAdmin additionally requires the administrator flag:
//
//	api := app.Group("/api", authmiddleware.RequireSession(codec, gate))
//	api.Get("/admin/status", authmiddleware.RequireAdmin(), handler)
//
// Failures are returned as *fiber.Error (401 or 403) for the app's error handler.
package auth
