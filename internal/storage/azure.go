package storage

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureStorage implements the Storage interface for Azure Blob Storage.
type AzureStorage struct {
	client      *azblob.Client
	accountName string
	accountKey  string
	container   string
	sasExpiry   time.Duration
}

// AzureStorageConfig holds configuration for Azure Blob Storage.
type AzureStorageConfig struct {
	// ConnectionString is the full Azure connection string (optional, alternative to AccountName+AccountKey)
	ConnectionString string
	// AccountName is the storage account name (required if ConnectionString not provided)
	AccountName string
	// AccountKey is the storage account access key (required if ConnectionString not provided)
	AccountKey string
	// Container is the blob container name (required)
	Container string
	// SASExpiry is the duration for SAS token expiration (default: 168h / 7 days)
	SASExpiry time.Duration
}

// NewAzureStorage creates a new Azure Blob Storage client.
// It supports both connection string and account+key authentication.
func NewAzureStorage(cfg *AzureStorageConfig) (*AzureStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("azure storage configuration is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("container name is required")
	}

	sasExpiry := cfg.SASExpiry
	if sasExpiry == 0 {
		sasExpiry = 168 * time.Hour
	}

	var client *azblob.Client
	var accountName, accountKey string
	var err error

	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client from connection string: %w", err)
		}
		// SAS signing needs the raw account key
		accountName, accountKey, err = parseConnectionString(cfg.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
	} else if cfg.AccountName != "" && cfg.AccountKey != "" {
		accountName = cfg.AccountName
		accountKey = cfg.AccountKey
		credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client with shared key: %w", err)
		}
	} else {
		return nil, fmt.Errorf("either connection string or (account name + key) must be provided")
	}

	return &AzureStorage{
		client:      client,
		accountName: accountName,
		accountKey:  accountKey,
		container:   cfg.Container,
		sasExpiry:   sasExpiry,
	}, nil
}

// parseConnectionString extracts account name and key from a connection
// string of the form "DefaultEndpointsProtocol=https;AccountName=x;AccountKey=y;...".
// Keys may contain '=' padding, so only the first '=' splits a pair.
func parseConnectionString(connStr string) (string, string, error) {
	parts := make(map[string]string)
	for _, pair := range strings.Split(connStr, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		parts[strings.TrimSpace(key)] = value
	}

	accountName := parts["AccountName"]
	accountKey := parts["AccountKey"]
	if accountName == "" || accountKey == "" {
		return "", "", fmt.Errorf("connection string must contain AccountName and AccountKey")
	}
	return accountName, accountKey, nil
}

// uploadBlob uploads data to a blob at the specified path with appropriate content-type.
func (a *AzureStorage) uploadBlob(ctx context.Context, blobPath string, data []byte) error {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlockBlobClient(blobPath)

	contentType := getContentType(blobPath)
	httpHeaders := &blob.HTTPHeaders{
		BlobContentType:        &contentType,
		BlobContentDisposition: stringPtr("inline"),
	}

	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: httpHeaders,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", blobPath, err)
	}
	return nil
}

// getContentType returns the MIME type for a file based on its extension.
func getContentType(filename string) string {
	switch path.Ext(filename) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func stringPtr(s string) *string {
	return &s
}

var artifactDescriptions = map[string]string{
	ArtifactHTML:     "Formatted status report",
	ArtifactMarkdown: "Markdown source of the report",
	ArtifactCSV:      "Rows for spreadsheets and scripts",
	ArtifactJSON:     "Rows with the N/A sentinel for missing timestamps",
}

// generateIndexHTML creates a page linking every uploaded artifact.
func generateIndexHTML(cluster, reportID string, artifactURLs map[string]string, order []string, expiresAt time.Time) string {
	var b strings.Builder
	title := html.EscapeString(fmt.Sprintf("Cluster status report: %s", cluster))

	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 820px; margin: 40px auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin-top: 0; font-size: 26px; color: #333; }
        .report-id { color: #666; font-size: 14px; margin-bottom: 20px; }
        ul { list-style: none; padding: 0; }
        li { padding: 14px; margin: 10px 0; background: #f8f9fa; border-left: 4px solid #0078d4; border-radius: 4px; }
        a { color: #0078d4; font-weight: 500; text-decoration: none; }
        .desc { color: #666; font-size: 14px; margin-top: 4px; }
        .expiry { margin-top: 30px; padding: 14px; background: #fff3cd; border-left: 4px solid #ffc107; border-radius: 4px; color: #856404; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <div class="report-id">Report ID: <code>%s</code></div>
        <ul>`, title, title, html.EscapeString(reportID))

	for _, name := range order {
		url, ok := artifactURLs[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, `
            <li>
                <a href="%s" target="_blank">%s</a>
                <div class="desc">%s</div>
            </li>`, html.EscapeString(url), name, artifactDescriptions[name])
	}

	fmt.Fprintf(&b, `
        </ul>
        <div class="expiry"><strong>Access expiration:</strong> these links expire on %s (UTC)</div>
    </div>
</body>
</html>`, expiresAt.UTC().Format("2006-01-02 15:04:05"))

	return b.String()
}

// generateSASURL generates a read-only Service SAS URL for a blob.
func (a *AzureStorage) generateSASURL(blobPath string, expiry time.Time) (string, error) {
	credential, err := azblob.NewSharedKeyCredential(a.accountName, a.accountKey)
	if err != nil {
		return "", fmt.Errorf("failed to create credential for SAS: %w", err)
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(blobPath)

	permissions := sas.BlobPermissions{Read: true}
	sasQueryParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     time.Now().UTC(),
		ExpiryTime:    expiry.UTC(),
		Permissions:   permissions.String(),
		ContainerName: a.container,
		BlobName:      blobPath,
	}.SignWithSharedKey(credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token for %s: %w", blobPath, err)
	}

	return fmt.Sprintf("%s?%s", blobClient.URL(), sasQueryParams.Encode()), nil
}

// SaveReport uploads every non-empty artifact under <cluster>/<report-id>/
// and returns SAS URLs. An index page linking them becomes the ReportURL.
// Individual upload failures are logged; only a total failure is an error.
func (a *AzureStorage) SaveReport(ctx context.Context, reportID string, artifacts *ReportArtifacts) (*SaveResult, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifacts cannot be nil")
	}
	if reportID == "" {
		return nil, fmt.Errorf("report ID is required")
	}

	expiresAt := time.Now().Add(a.sasExpiry)
	prefix := artifactPrefix(artifacts.Cluster, reportID)

	result := &SaveResult{
		ArtifactURLs: make(map[string]string),
		ExpiresAt:    expiresAt,
	}

	var lastError error
	var uploaded []string
	for _, f := range artifacts.files() {
		if len(f.data) == 0 {
			slog.Debug("skipping empty artifact", "artifact", f.name, "report_id", reportID)
			continue
		}

		blobPath := path.Join(prefix, f.name)
		if err := a.uploadBlob(ctx, blobPath, f.data); err != nil {
			slog.Error("artifact upload failed", "artifact", f.name, "report_id", reportID, "error", err)
			lastError = err
			continue
		}

		sasURL, err := a.generateSASURL(blobPath, expiresAt)
		if err != nil {
			slog.Error("SAS generation failed", "artifact", f.name, "report_id", reportID, "error", err)
			lastError = err
			continue
		}

		result.ArtifactURLs[f.name] = sasURL
		uploaded = append(uploaded, f.name)
	}

	if len(uploaded) == 0 {
		if lastError != nil {
			return nil, fmt.Errorf("failed to upload any artifacts: %w", lastError)
		}
		return nil, fmt.Errorf("no artifacts were uploaded")
	}

	indexHTML := generateIndexHTML(artifacts.Cluster, reportID, result.ArtifactURLs, uploaded, expiresAt)
	indexPath := path.Join(prefix, ArtifactIndex)
	if err := a.uploadBlob(ctx, indexPath, []byte(indexHTML)); err != nil {
		slog.Warn("failed to upload index page", "report_id", reportID, "error", err)
	} else if indexURL, err := a.generateSASURL(indexPath, expiresAt); err != nil {
		slog.Warn("failed to sign index page", "report_id", reportID, "error", err)
	} else {
		result.ReportURL = indexURL
		result.ArtifactURLs[ArtifactIndex] = indexURL
	}

	if result.ReportURL == "" {
		result.ReportURL = result.ArtifactURLs[uploaded[0]]
	}
	return result, nil
}
