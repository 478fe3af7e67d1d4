package clients

import (
	"context"

	"github.com/tapstream-io/tap-sailthru/pkg/errors"
)

// Row is a loosely typed API record
type Row = map[string]interface{}

// ListsResponse is the envelope of GET /list
type ListsResponse struct {
	Lists []Row `json:"lists"`
}

// AdPlansResponse is the envelope of GET /ad/plan
type AdPlansResponse struct {
	AdPlans []Row `json:"ad_plans"`
}

// BlastsResponse is the envelope of GET /blast
type BlastsResponse struct {
	Blasts []Row `json:"blasts"`
}

// BlastRepeatsResponse is the envelope of GET /blast_repeat
type BlastRepeatsResponse struct {
	Repeats []Row `json:"repeats"`
}

// JobResponse is the envelope of the /job endpoint. A non-zero Error
// with a 403 indicates the export was refused and should be skipped.
type JobResponse struct {
	JobID     string `json:"job_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	ExportURL string `json:"export_url"`
	Error     int    `json:"error"`
	ErrorMsg  string `json:"errormsg"`
}

// GetLists returns all Sailthru lists
func (c *SailthruClient) GetLists(ctx context.Context) (*ListsResponse, error) {
	var out ListsResponse
	if err := c.Get(ctx, "/list", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAdTargeterPlans returns all Ad Targeter plans
func (c *SailthruClient) GetAdTargeterPlans(ctx context.Context) (*AdPlansResponse, error) {
	var out AdPlansResponse
	if err := c.Get(ctx, "/ad/plan", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlasts returns campaigns filtered by status. The endpoint cannot
// list all blasts; it requires either a status or a blast id.
func (c *SailthruClient) GetBlasts(ctx context.Context, status string) (*BlastsResponse, error) {
	if status == "" {
		return nil, errors.New(errors.ErrorTypeBadRequest,
			`endpoint requires either "blast_id" or "status" parameter`)
	}
	var out BlastsResponse
	if err := c.Get(ctx, "/blast", map[string]interface{}{"status": status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlastRepeats returns all recurring campaigns
func (c *SailthruClient) GetBlastRepeats(ctx context.Context) (*BlastRepeatsResponse, error) {
	var out BlastRepeatsResponse
	if err := c.Get(ctx, "/blast_repeat", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser returns one user profile by id
func (c *SailthruClient) GetUser(ctx context.Context, params map[string]interface{}) (Row, error) {
	if params["id"] == nil || params["id"] == "" {
		return nil, errors.New(errors.ErrorTypeBadRequest, `required "id" parameter missing`)
	}
	var out Row
	if err := c.Get(ctx, "/user", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob returns the status of a data export job
func (c *SailthruClient) GetJob(ctx context.Context, jobID string) (*JobResponse, error) {
	if jobID == "" {
		return nil, errors.New(errors.ErrorTypeBadRequest, `required "job_id" parameter missing`)
	}
	var out JobResponse
	if err := c.Get(ctx, "/job", map[string]interface{}{"job_id": jobID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJob submits a data export job
func (c *SailthruClient) CreateJob(ctx context.Context, params map[string]interface{}) (*JobResponse, error) {
	if params["job"] == nil || params["job"] == "" {
		return nil, errors.New(errors.ErrorTypeBadRequest, `required "job" type parameter missing`)
	}
	var out JobResponse
	if err := c.Post(ctx, "/job", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
