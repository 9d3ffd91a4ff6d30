package handler

import (
	"trafficwatch/internal/violation/models"
	"trafficwatch/internal/violation/registry"
)

// ListResponse is one page of violations.
type ListResponse struct {
	Items  []models.Violation `json:"items"`
	Total  int                `json:"total"`
	Offset int                `json:"offset"`
	Limit  int                `json:"limit"`
}

func toListResponse(res models.ListResult, requested models.Page) ListResponse {
	page, err := requested.Normalize()
	if err != nil {
		page = requested
	}
	return ListResponse{
		Items:  res.Items,
		Total:  res.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	}
}

// RegistryResponse lists the active violation types and fines.
type RegistryResponse struct {
	Version    string           `json:"version"`
	Violations []registry.Entry `json:"violations"`
}
