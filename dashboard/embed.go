// Package dashboard embeds the status page served by the internal server
// at "/". The page reads /api/status once and then follows /api/sse.
package dashboard

import "embed"

// Assets holds assets/index.html. The literal {{TITLE}} in the page is
// replaced with the escaped dashboard title when served.
//
//go:embed assets/*
var Assets embed.FS
