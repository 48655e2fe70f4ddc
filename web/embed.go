package web

import "embed"

// FS contains the track browser served by "sq100 serve".
//
//go:embed *.html *.css *.js
var FS embed.FS
