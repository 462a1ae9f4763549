package google

import (
	"context"
	"fmt"
	"strings"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"meetsync/internal/config"
	"meetsync/internal/services"
)

// Client bundles the Google API services sharing one set of credentials.
type Client struct {
	calendarID string
	folderID   string
	share      bool

	calendar *gcal.Service
	sheets   *sheets.Service
	drive    *drive.Service
}

// New builds a client from the google section of cfg. Extra options are
// appended after the credentials option, so tests can redirect endpoints.
func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*Client, error) {
	base := make([]option.ClientOption, 0, len(opts)+2)
	if path := strings.TrimSpace(cfg.Google.CredentialsFile); path != "" {
		base = append(base, option.WithCredentialsFile(path))
	}
	base = append(base, option.WithScopes(gcal.CalendarReadonlyScope, sheets.SpreadsheetsScope, drive.DriveFileScope))
	base = append(base, opts...)

	calSvc, err := gcal.NewService(ctx, base...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "google", "calendar client", "", err)
	}
	sheetSvc, err := sheets.NewService(ctx, base...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "google", "sheets client", "", err)
	}
	driveSvc, err := drive.NewService(ctx, base...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "google", "drive client", "", err)
	}

	calendarID := strings.TrimSpace(cfg.Calendar.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{
		calendarID: calendarID,
		folderID:   strings.TrimSpace(cfg.Google.DriveFolderID),
		share:      cfg.Google.ShareDocuments,
		calendar:   calSvc,
		sheets:     sheetSvc,
		drive:      driveSvc,
	}, nil
}

// String identifies the client in logs.
func (c *Client) String() string {
	return fmt.Sprintf("google(calendar=%s)", c.calendarID)
}
