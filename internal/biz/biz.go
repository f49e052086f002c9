// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"net/http"

	"Meridian/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewAPILimiter,
	NewAuthLimiter,
	NewRegionCoordinator,
	NewHTTPClient,
	// Import data layer providers
	data.NewAdmissionRepo,
	data.NewRegionRepo,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(AdmissionRepo), new(*data.AdmissionRepo)),
	wire.Bind(new(RegionRepo), new(*data.RegionRepo)),
	wire.Bind(new(Doer), new(*http.Client)),
)
