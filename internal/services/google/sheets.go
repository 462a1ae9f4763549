package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// AppendRow appends one row below the last non-empty row of tab.
func (c *Client) AppendRow(ctx context.Context, sheetID, tab string, row []string) error {
	values := make([]interface{}, len(row))
	for i, cell := range row {
		values[i] = cell
	}
	_, err := c.sheets.Spreadsheets.Values.
		Append(sheetID, quoteTab(tab)+"!A:J", &sheets.ValueRange{Values: [][]interface{}{values}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classify("append row", err)
	}
	return nil
}

// ReadProjects returns the name and keyword cells of the project tab,
// skipping the header row.
func (c *Client) ReadProjects(ctx context.Context, sheetID, tab string) ([][]string, error) {
	resp, err := c.sheets.Spreadsheets.Values.Get(sheetID, quoteTab(tab)+"!A2:B").Context(ctx).Do()
	if err != nil {
		return nil, classify("read projects", err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, 2)
		for _, cell := range raw {
			row = append(row, strings.TrimSpace(fmt.Sprint(cell)))
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EnsureTabs creates missing tabs and writes header rows into tabs whose
// first row is empty. Existing headers are left alone.
func (c *Client) EnsureTabs(ctx context.Context, sheetID string, headers map[string][]string) error {
	spreadsheet, err := c.sheets.Spreadsheets.Get(sheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return classify("get spreadsheet", err)
	}
	existing := make(map[string]struct{}, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			existing[sheet.Properties.Title] = struct{}{}
		}
	}

	var requests []*sheets.Request
	for tab := range headers {
		if _, ok := existing[tab]; ok {
			continue
		}
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}},
		})
	}
	if len(requests) > 0 {
		_, err := c.sheets.Spreadsheets.BatchUpdate(sheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
			Context(ctx).
			Do()
		if err != nil {
			return classify("add tabs", err)
		}
	}

	for tab, header := range headers {
		if len(header) == 0 {
			continue
		}
		first, err := c.sheets.Spreadsheets.Values.Get(sheetID, quoteTab(tab)+"!1:1").Context(ctx).Do()
		if err != nil {
			return classify("read header", err)
		}
		if len(first.Values) > 0 && len(first.Values[0]) > 0 {
			continue
		}
		cells := make([]interface{}, len(header))
		for i, name := range header {
			cells[i] = name
		}
		_, err = c.sheets.Spreadsheets.Values.
			Update(sheetID, quoteTab(tab)+"!A1", &sheets.ValueRange{Values: [][]interface{}{cells}}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return classify("write header", err)
		}
	}
	return nil
}

func quoteTab(tab string) string {
	if strings.ContainsAny(tab, " '!") {
		return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab
}
