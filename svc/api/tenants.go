package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/storefleet/pkg/handler"
	"github.com/dmitrymomot/storefleet/svc/provisioning"
)

type codeRequest struct {
	Code string `path:"code"`
}

type idRequest struct {
	ID string `path:"id"`
}

type deleteRequest struct {
	Code  string `path:"code"`
	Force bool   `query:"force"`
}

func (a *API) createTenant(ctx handler.Context, req provisioning.Request) handler.Response {
	res, err := a.deps.Lifecycle.Provision(ctx, req)
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(res, handler.WithStatus(http.StatusCreated))
}

func (a *API) listTenants(ctx handler.Context, _ struct{}) handler.Response {
	records, err := a.deps.Directory.List(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(records, handler.WithMeta(map[string]any{"total": len(records)}))
}

func (a *API) showTenant(ctx handler.Context, req codeRequest) handler.Response {
	rec, err := a.deps.Directory.FindByCode(ctx, req.Code)
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(rec)
}

func (a *API) showTenantByID(ctx handler.Context, req idRequest) handler.Response {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return errorResponse(errStoreNotFound)
	}
	rec, err := a.deps.Directory.FindByID(ctx, id)
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(rec)
}

func (a *API) activateTenant(ctx handler.Context, req codeRequest) handler.Response {
	rec, err := a.deps.Lifecycle.Activate(ctx, req.Code)
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(rec)
}

func (a *API) deactivateTenant(ctx handler.Context, req codeRequest) handler.Response {
	rec, err := a.deps.Lifecycle.Deactivate(ctx, req.Code)
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(rec)
}

func (a *API) deleteTenant(ctx handler.Context, req deleteRequest) handler.Response {
	var opts []provisioning.DeleteOption
	if req.Force {
		opts = append(opts, provisioning.Force())
	}
	if err := a.deps.Lifecycle.Delete(ctx, req.Code, opts...); err != nil {
		return errorResponse(err)
	}
	return handler.Empty()
}
