// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the assistant's HTTP routes onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillgate-io/skillgate-docs/services/assistant/handlers"
)

// SetupRoutes registers the assistant's endpoints.
//
// POST /api/chat is the streaming chat endpoint; /healthz and /metrics are
// the operational surface.
func SetupRoutes(router *gin.Engine, chat *handlers.ChatHandler) {
	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/chat", chat.HandleChat)
	}
}
