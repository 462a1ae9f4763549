package google

import (
	"context"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const googleDocMIME = "application/vnd.google-apps.document"

// UploadDocument converts HTML content into a Google Doc inside folder (or
// the configured folder when empty) and returns its web link. When document
// sharing is enabled anyone with the link may read it.
func (c *Client) UploadDocument(ctx context.Context, name, content, folder string) (string, error) {
	if folder == "" {
		folder = c.folderID
	}
	file := &drive.File{Name: name, MimeType: googleDocMIME}
	if folder != "" {
		file.Parents = []string{folder}
	}
	created, err := c.drive.Files.Create(file).
		Media(strings.NewReader(content), googleapi.ContentType("text/html")).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("upload document", err)
	}
	if c.share {
		_, err := c.drive.Permissions.Create(created.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return "", classify("share document", err)
		}
	}
	link := created.WebViewLink
	if link == "" {
		link = "https://docs.google.com/document/d/" + created.Id + "/edit"
	}
	return link, nil
}
