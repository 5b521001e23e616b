// Package handlers contains the HTTP handlers for the gateway API:
// health, chat, and the review endpoints.
package handlers
