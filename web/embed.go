// Package web provides embedded static assets for the adkinspect web interface.
package web

import "embed"

// StaticFS contains the embedded static files served by `adkinspect web`.
//
//go:embed static/*
var StaticFS embed.FS
