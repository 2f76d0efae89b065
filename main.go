package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"loopy/internal/config"
)

func main() {
	// Config errors are reported by startup through the UI.
	frontendDir := filepath.Join("frontend", "dist")
	if cfg, err := config.Load(); err == nil {
		frontendDir = cfg.UI.FrontendDir
	}

	app := NewApp()

	err := wails.Run(&options.App{
		Title:     "Loopy",
		Width:     1024,
		Height:    720,
		MinWidth:  720,
		MinHeight: 520,
		AssetServer: &assetserver.Options{
			Assets:  os.DirFS(frontendDir),
			Handler: app,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
