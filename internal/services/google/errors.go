package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"meetsync/internal/services"
)

var rateLimitReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"quotaExceeded":         {},
}

// classify tags err as transient or permanent for the given operation.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if transient(err) {
		return services.Wrap(services.ErrTransient, "google", op, "", err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound {
			return services.Wrap(services.ErrNotFound, "google", op, fmt.Sprintf("status %d", apiErr.Code), err)
		}
		return services.Wrap(services.ErrExternalTool, "google", op, fmt.Sprintf("status %d", apiErr.Code), err)
	}
	return services.Wrap(services.ErrExternalTool, "google", op, "", err)
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusRequestTimeout:
			return true
		case apiErr.Code >= 500:
			return true
		case apiErr.Code == http.StatusForbidden:
			for _, item := range apiErr.Errors {
				if _, ok := rateLimitReasons[item.Reason]; ok {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
