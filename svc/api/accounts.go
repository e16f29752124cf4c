package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/handler"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

type searchRequest struct {
	Q     string `query:"q"`
	Limit int    `query:"limit"`
}

type pageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// storeAccounts groups the matches of one store.
type storeAccounts struct {
	Store    string            `json:"store"`
	Accounts []*tenant.Account `json:"accounts"`
}

type storeFailure struct {
	Store string `json:"store"`
	Error string `json:"error"`
}

// searchAllAccounts searches every active store. Stores that fail are listed
// under meta.failures while the matches of the others are still returned.
func (a *API) searchAllAccounts(ctx handler.Context, req searchRequest) handler.Response {
	q := strings.TrimSpace(req.Q)
	if q == "" {
		return errorResponse(handler.NewHTTPError(http.StatusBadRequest, "bad_request", "query parameter q is required"))
	}
	limit := a.limit(req.Limit)

	searchCtx, cancel := context.WithTimeout(ctx, a.cfg.SearchTimeout)
	defer cancel()

	res, err := fanout.ForEachConcurrent(searchCtx, a.deps.Stores, a.cfg.SearchConcurrency,
		func(ctx context.Context, _ string) ([]*tenant.Account, error) {
			return a.deps.Accounts.SearchAccounts(ctx, q, limit)
		},
		fanout.WithLogger(a.log),
	)

	var partial *fanout.PartialError[[]*tenant.Account]
	if err != nil && !errors.As(err, &partial) {
		return errorResponse(err)
	}

	data := make([]storeAccounts, 0, len(res.Items))
	for _, item := range res.Items {
		if len(item.Value) == 0 {
			continue
		}
		data = append(data, storeAccounts{Store: item.Code, Accounts: item.Value})
	}

	meta := map[string]any{"stores": len(res.Items)}
	if partial != nil {
		failures := make([]storeFailure, 0, len(partial.Failures))
		for _, f := range partial.Failures {
			failures = append(failures, storeFailure{Store: f.Code, Error: publicMessage(f.Err)})
		}
		meta["stores"] = len(res.Items) + len(failures)
		meta["failures"] = failures
		meta["partial"] = true
	}

	return handler.JSON(data, handler.WithMeta(meta))
}

func (a *API) listStoreAccounts(ctx handler.Context, req pageRequest) handler.Response {
	limit := a.limit(req.Limit)
	offset := max(req.Offset, 0)

	accounts, err := a.deps.Accounts.ListAccounts(ctx, limit, offset)
	if err != nil {
		return errorResponse(err)
	}
	total, err := a.deps.Accounts.CountAccounts(ctx)
	if err != nil {
		return errorResponse(err)
	}

	return handler.JSON(accounts, handler.WithMeta(map[string]any{
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}))
}

func (a *API) searchStoreAccounts(ctx handler.Context, req searchRequest) handler.Response {
	q := strings.TrimSpace(req.Q)
	if q == "" {
		return errorResponse(handler.NewHTTPError(http.StatusBadRequest, "bad_request", "query parameter q is required"))
	}

	accounts, err := a.deps.Accounts.SearchAccounts(ctx, q, a.limit(req.Limit))
	if err != nil {
		return errorResponse(err)
	}
	return handler.JSON(accounts)
}

// publicMessage is the client-facing text of a per-store failure.
func publicMessage(err error) string {
	if httpErr, ok := classify(err); ok {
		return httpErr.Error()
	}
	return http.StatusText(http.StatusInternalServerError)
}
