package httpadapter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

func bindPage(r *http.Request) (domain.PageRequest, error) {
	var page domain.PageRequest
	if err := bindQuery(r, "page", &page.Page); err != nil {
		return domain.PageRequest{}, err
	}
	if err := bindQuery(r, "limit", &page.Limit); err != nil {
		return domain.PageRequest{}, err
	}
	return page.Normalize()
}

func bindHistoryFilter(r *http.Request) (domain.HistoryFilter, error) {
	var reporter, status string
	if err := bindQuery(r, "reporter_name", &reporter); err != nil {
		return domain.HistoryFilter{}, err
	}
	if err := bindQuery(r, "status", &status); err != nil {
		return domain.HistoryFilter{}, err
	}

	filter := domain.HistoryFilter{
		ReporterName: strings.TrimSpace(reporter),
		Status:       domain.SearchStatus(strings.ToLower(strings.TrimSpace(status))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.HistoryFilter{}, domain.WrapError(domain.ErrInvalidInput, "bind history filter", fmt.Errorf("unknown status %q", status))
	}
	return filter, nil
}

// bindQuery decodes an optional form-style query parameter. Absent parameters
// leave dst untouched.
func bindQuery(r *http.Request, name string, dst any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "bind query "+name, err)
	}
	return nil
}
