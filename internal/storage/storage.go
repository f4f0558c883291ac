// Package storage persists cluster state, event history, report runs and
// rendered report artifacts.
package storage

import (
	"context"
	"fmt"
	"path"
	"time"
)

// Storage persists rendered report artifacts to local or cloud storage.
type Storage interface {
	// SaveReport writes every non-empty artifact of a report.
	// It returns where the artifacts can be read back.
	SaveReport(ctx context.Context, reportID string, artifacts *ReportArtifacts) (*SaveResult, error)
}

// Artifact file names.
const (
	ArtifactCSV      = "report.csv"
	ArtifactJSON     = "report.json"
	ArtifactMarkdown = "report.md"
	ArtifactHTML     = "report.html"
	ArtifactIndex    = "index.html"
)

// ReportArtifacts holds one report rendered in each supported format.
type ReportArtifacts struct {
	// Cluster namespaces the artifacts so reports of one cluster sit together
	Cluster  string
	CSV      []byte
	JSON     []byte
	Markdown []byte
	HTML     []byte
}

// files returns the artifacts keyed by file name in display order.
func (a *ReportArtifacts) files() []artifactFile {
	return []artifactFile{
		{ArtifactHTML, a.HTML},
		{ArtifactMarkdown, a.Markdown},
		{ArtifactCSV, a.CSV},
		{ArtifactJSON, a.JSON},
	}
}

type artifactFile struct {
	name string
	data []byte
}

// artifactPrefix is the directory or blob prefix of one report.
func artifactPrefix(cluster, reportID string) string {
	if cluster == "" {
		return reportID
	}
	return path.Join(cluster, reportID)
}

// SaveResult contains the results of a storage operation, including URLs to access artifacts.
type SaveResult struct {
	// ReportURL is the primary link to the report (HTML report or index page)
	ReportURL string
	// ArtifactURLs maps artifact names to their URLs or paths
	ArtifactURLs map[string]string
	// ExpiresAt is when the URLs expire; zero for local paths
	ExpiresAt time.Time
}

// StorageConfig represents the configuration needed to initialize storage backends.
// This interface allows us to accept different config types without importing
// the concrete config package.
type StorageConfig interface {
	// IsAzureStorageEnabled returns true if Azure storage should be used
	IsAzureStorageEnabled() bool
	// GetWorkspaceRoot returns the filesystem root directory for artifacts
	GetWorkspaceRoot() string
}

// AzureConfig provides Azure-specific configuration needed to initialize AzureStorage.
type AzureConfig interface {
	StorageConfig
	GetAzureConnectionString() string
	GetAzureAccount() string
	GetAzureKey() string
	GetAzureContainer() string
	GetAzureSASExpiry() time.Duration
}

// NewStorage returns Azure storage when it is configured and filesystem
// storage otherwise.
func NewStorage(cfg StorageConfig) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage configuration is required")
	}

	if cfg.IsAzureStorageEnabled() {
		azureCfg, ok := cfg.(AzureConfig)
		if !ok {
			return nil, fmt.Errorf("azure storage enabled but config doesn't implement AzureConfig interface")
		}

		azureStorage, err := NewAzureStorage(&AzureStorageConfig{
			ConnectionString: azureCfg.GetAzureConnectionString(),
			AccountName:      azureCfg.GetAzureAccount(),
			AccountKey:       azureCfg.GetAzureKey(),
			Container:        azureCfg.GetAzureContainer(),
			SASExpiry:        azureCfg.GetAzureSASExpiry(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Azure storage: %w", err)
		}
		return azureStorage, nil
	}

	return NewFilesystemStorage(cfg.GetWorkspaceRoot()), nil
}
