package main

import (
	_ "github.com/eleven-am/wearable-voice/docs"
	"github.com/eleven-am/wearable-voice/internal/bootstrap"
)

// @title Wearable Voice API
// @version 1.0.0
// @description Audio ingestion and transcription backend for Friend-compatible wearables

// @host api.wearable.example.com
// @BasePath /v1

// @securityDefinitions.apikey AdminAuth
// @in header
// @name Authorization

// @securityDefinitions.apikey DeviceAuth
// @in header
// @name X-API-Key

func main() {
	bootstrap.Run()
}
