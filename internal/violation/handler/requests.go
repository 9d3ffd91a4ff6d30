package handler

import (
	"net/http"
	"strconv"
	"strings"

	"trafficwatch/internal/violation/models"
	dErrors "trafficwatch/pkg/domain-errors"
)

// CreateViolationRequest is the body of POST /api/violations.
type CreateViolationRequest struct {
	ViolationType string `json:"violation_type"`
	Plate         string `json:"plate"`
	DetectedAt    string `json:"detected_at"`
	CameraID      string `json:"camera_id,omitempty"`
	FineAmount    *int64 `json:"fine_amount,omitempty"`
}

// Validate trims whitespace. Presence and content rules run in the validator
// so field errors keep a single order.
func (r *CreateViolationRequest) Validate() error {
	r.ViolationType = strings.TrimSpace(r.ViolationType)
	r.Plate = strings.TrimSpace(r.Plate)
	r.DetectedAt = strings.TrimSpace(r.DetectedAt)
	r.CameraID = strings.TrimSpace(r.CameraID)
	return nil
}

func (r *CreateViolationRequest) Draft() models.Draft {
	return models.Draft{
		ViolationType: r.ViolationType,
		Plate:         r.Plate,
		DetectedAt:    r.DetectedAt,
		CameraID:      r.CameraID,
		FineAmount:    r.FineAmount,
	}
}

// UpdateStatusRequest is the body of PATCH /api/violations/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Validate() error {
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		return dErrors.NewField("status", "status is required")
	}
	return nil
}

// parseListQuery splits the query string into pagination and filter criteria.
// Only the first value of a repeated key is used.
func parseListQuery(r *http.Request) (models.Page, map[string]string, error) {
	var page models.Page
	filter := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		switch key {
		case "offset":
			n, err := strconv.Atoi(values[0])
			if err != nil {
				return models.Page{}, nil, dErrors.NewField("offset", "offset must be an integer")
			}
			page.Offset = n
		case "limit":
			n, err := strconv.Atoi(values[0])
			if err != nil {
				return models.Page{}, nil, dErrors.NewField("limit", "limit must be an integer")
			}
			page.Limit = n
		default:
			filter[key] = values[0]
		}
	}
	return page, filter, nil
}
