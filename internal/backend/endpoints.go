package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"dispatchdesk/internal/model"
)

func (c *Client) ListShipments(ctx context.Context, q ShipmentQuery) (model.Paged[model.Parcel], error) {
	v := url.Values{}
	for _, s := range q.Statuses {
		v.Add("status", string(s))
	}
	for _, t := range q.TaskTypes {
		v.Add("type", fmt.Sprint(int(t)))
	}
	if q.WarehouseID != "" {
		v.Set("warehouseId", q.WarehouseID)
	}
	pageParams(v, q.Page)
	var out model.Paged[model.Parcel]
	err := c.do(ctx, "list_shipments", http.MethodGet, "/shipments", v, nil, &out)
	return out, err
}

func (c *Client) ListDrivers(ctx context.Context, q DriverQuery) (model.Paged[model.Driver], error) {
	v := url.Values{}
	if q.Status != nil {
		v.Set("status", fmt.Sprint(int(*q.Status)))
	}
	pageParams(v, q.Page)
	var out model.Paged[model.Driver]
	err := c.do(ctx, "list_drivers", http.MethodGet, "/drivers", v, nil, &out)
	return out, err
}

func (c *Client) SoloAssign(ctx context.Context, req SoloAssignRequest) (Ack, error) {
	return c.ack(ctx, "solo_assign", "/jobs/solo-assign", req)
}

func (c *Client) AutoAssignOptimize(ctx context.Context, req OptimizeRequest) (model.OptimizeResult, error) {
	var out model.OptimizeResult
	err := c.do(ctx, "auto_assign_optimize", http.MethodPost, "/jobs/auto-assign-optimize", nil, req, &out)
	return out, err
}

func (c *Client) ManualAssign(ctx context.Context, req ManualAssignRequest) (Ack, error) {
	return c.ack(ctx, "manual_assign", "/jobs/manual-assign", req)
}

func (c *Client) ChangeDriver(ctx context.Context, req ChangeDriverRequest) (Ack, error) {
	return c.ack(ctx, "change_driver", "/jobs/visits/change-driver", req)
}

func (c *Client) Unassign(ctx context.Context, jobID string, shipmentIDs []string) (Ack, error) {
	return c.ack(ctx, "unassign", "/jobs/"+url.PathEscape(jobID)+"/unassign", unassignRequest{ShipmentIDs: shipmentIDs})
}

func (c *Client) ListJobs(ctx context.Context, q JobQuery) (model.Paged[model.RawJob], error) {
	v := url.Values{}
	for _, id := range q.JobIDs {
		v.Add("jobIds[]", id)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	pageParams(v, q.Page)
	var out model.Paged[model.RawJob]
	err := c.do(ctx, "list_jobs", http.MethodGet, "/jobs", v, nil, &out)
	return out, err
}

func (c *Client) GetJob(ctx context.Context, jobID string) (model.RawJob, error) {
	var out model.RawJob
	err := c.do(ctx, "get_job", http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil, &out)
	return out, err
}

func (c *Client) DispatchJob(ctx context.Context, jobID string) (Ack, error) {
	ack, err := c.ack(ctx, "dispatch_job", "/jobs/"+url.PathEscape(jobID)+"/dispatch", struct{}{})
	if err == nil && ack.JobID == "" {
		ack.JobID = jobID
	}
	return ack, err
}

func (c *Client) DispatchJobs(ctx context.Context, jobIDs []string) ([]DispatchResult, error) {
	var out dispatchBatchResponse
	err := c.do(ctx, "dispatch_jobs", http.MethodPost, "/jobs/dispatch", nil, dispatchBatchRequest{JobIDs: jobIDs}, &out)
	return out.Results, err
}

// ack posts body and treats any 2xx as success, keeping the backend's
// message and job id when it sends them.
func (c *Client) ack(ctx context.Context, op, path string, body any) (Ack, error) {
	var out Ack
	if err := c.do(ctx, op, http.MethodPost, path, nil, body, &out); err != nil {
		return Ack{}, err
	}
	out.Success = true
	return out, nil
}
