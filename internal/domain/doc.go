// Package domain contains the core concepts of the resize-and-package pipeline.
// Keep this package free of transport (HTTP) and infrastructure (PDF engines, Redis) concerns.
package domain
