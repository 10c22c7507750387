package main

import (
	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/circuitbreaker"
)

const version = "1.0.0"

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	Cache          string `json:"cache"`
	CircuitBreaker string `json:"circuit_breaker"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type InvalidateResponse struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

type ClearResponse struct {
	Message string `json:"message"`
	Scope   string `json:"scope"`
	Deleted int    `json:"deleted"`
}

type BackupResponse struct {
	Message    string `json:"message"`
	BackupPath string `json:"backup_path"`
}

type BackupListResponse struct {
	Count   int                `json:"count"`
	Backups []cache.BackupInfo `json:"backups"`
}

type RestoreResponse struct {
	Message      string `json:"message"`
	RestoredFrom string `json:"restored_from"`
	KeysRestored int    `json:"keys_restored"`
	SizeKB       int    `json:"size_kb"`
}

type CircuitBreakerResponse struct {
	circuitbreaker.Snapshot
	Config CircuitBreakerConfig `json:"config"`
}

type CircuitBreakerConfig struct {
	Threshold   int `json:"threshold"`
	CooldownSec int `json:"cooldown_sec"`
}

type DataURIResponse struct {
	DataURI string `json:"data_uri"`
}
